package model

import "time"

type StoredPart struct {
	Text string `json:"text"`
}

// StoredTurn mirrors the completion API's content shape so stored history can
// be sent back unchanged.
type StoredTurn struct {
	Role  string       `json:"role"`
	Parts []StoredPart `json:"parts"`
}

// Discussion is the document under notes_collection/{topicId}.
type Discussion struct {
	NoteContent    string       `json:"noteContent"`
	ChatHistory    []StoredTurn `json:"chatHistory"`
	LastUpdated    *time.Time   `json:"lastUpdated,omitempty"`
	Area           string       `json:"area"`
	Genre          string       `json:"genre"`
	HasSuggestions bool         `json:"hasSuggestions"`
}

const (
	DiscussionCollection = "notes_collection"

	FieldNoteContent    = "noteContent"
	FieldChatHistory    = "chatHistory"
	FieldLastUpdated    = "lastUpdated"
	FieldArea           = "area"
	FieldGenre          = "genre"
	FieldHasSuggestions = "hasSuggestions"
)
