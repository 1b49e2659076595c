package dto

type ToggleCategoryRequest struct {
	Category string `json:"category" validate:"required,max=100"`
}

type AddTopicRequest struct {
	Topic    string `json:"topic" validate:"required,max=500"`
	Category string `json:"category" validate:"required,max=100"`
}

type GeneratedTopicResponse struct {
	Topic    string `json:"topic"`
	Category string `json:"category"`
}

type SaveChatRequest struct {
	Topic    string `json:"topic" validate:"required,max=500"`
	Category string `json:"category" validate:"max=100"`
	Note     string `json:"note"`
}

type AddNoteRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}
