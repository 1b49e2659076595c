package model

import "time"

const (
	ChitChatPreferencesCollection = "preferences"
	ChitChatPreferencesDoc        = "userSettings"
	ChitChatTopicsCollection      = "userTopics"
	ChitChatChatsCollection       = "chats"
)

type ChitChatPreferences struct {
	Categories []string `json:"categories"`
}

type ChitChatTopics struct {
	Topics []string `json:"topics"`
}

type ChitChatNote struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ChitChat struct {
	Topic     string         `json:"topic"`
	Category  string         `json:"category"`
	CreatedAt time.Time      `json:"createdAt"`
	Notes     []ChitChatNote `json:"notes"`
}
