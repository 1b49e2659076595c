package entity

import "time"

type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleModel MessageRole = "model"
)

// Message is one turn of a discussion. Messages are never edited once appended.
type Message struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// DiscussionDocument is the stored form of a discussion.
type DiscussionDocument struct {
	NoteContent    string
	ChatHistory    []Message
	LastUpdated    time.Time
	Area           string
	Genre          string
	HasSuggestions bool
}

// RecentDiscussion is one entry of the recent discussions index.
type RecentDiscussion struct {
	TopicId     string    `json:"topicId"`
	TopicLabel  string    `json:"topicLabel"`
	LastUpdated time.Time `json:"lastUpdated"`
}
