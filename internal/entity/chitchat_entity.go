package entity

import "time"

var DefaultChitChatCategories = []string{
	"Deep Questions",
	"Fun & Silly",
	"Travel Dreams",
	"Relationship Check-in",
	"Future Plans",
	"Past Memories",
}

// DefaultChitChatTopics seeds one starter per default category.
var DefaultChitChatTopics = map[string]string{
	"Deep Questions":        "What's a dream you've never said out loud?",
	"Fun & Silly":           "If you were a type of cheese, what type would you be and why?",
	"Travel Dreams":         "What's the most beautiful place you've ever been?",
	"Relationship Check-in": "What's one small thing I can do this week to make you feel more loved?",
	"Future Plans":          "What's a skill you'd like to learn together?",
	"Past Memories":         "What's your happiest childhood memory?",
}

type ChitChatPreferences struct {
	Categories []string `json:"categories"`
}

type ChitChatTopicGroup struct {
	Category string   `json:"category"`
	Topics   []string `json:"topics"`
}

type ChitChatNote struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ChitChat struct {
	Id        string         `json:"id"`
	Topic     string         `json:"topic"`
	Category  string         `json:"category"`
	CreatedAt time.Time      `json:"createdAt"`
	Notes     []ChitChatNote `json:"notes"`
}
