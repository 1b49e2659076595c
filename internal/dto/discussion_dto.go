package dto

import "discussion-companion-be/internal/discussion"

type OpenDiscussionRequest struct {
	TopicLabel   string `json:"topicLabel" validate:"required_without=DiscussionId,max=200"`
	DiscussionId string `json:"discussionId" validate:"max=200"`
}

type SendMessageRequest struct {
	Message string `json:"message" validate:"required,max=8000"`
}

type SuggestionsRequest struct {
	IsNewSet bool `json:"isNewSet"`
}

type SaveNotesRequest struct {
	Notes string `json:"notes" validate:"max=200000"`
}

type EditingRequest struct {
	Active bool `json:"active"`
}

type OpenDiscussionResponse struct {
	Created    bool            `json:"created"`
	Discussion discussion.View `json:"discussion"`
}

type DeleteDiscussionResponse struct {
	Deleted    bool            `json:"deleted"`
	Discussion discussion.View `json:"discussion"`
}
