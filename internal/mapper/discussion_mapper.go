package mapper

import (
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"
)

type DiscussionMapper struct{}

func NewDiscussionMapper() *DiscussionMapper {
	return &DiscussionMapper{}
}

func (m *DiscussionMapper) MessagesToTurns(messages []entity.Message) []model.StoredTurn {
	turns := make([]model.StoredTurn, len(messages))
	for i, msg := range messages {
		turns[i] = model.StoredTurn{
			Role:  string(msg.Role),
			Parts: []model.StoredPart{{Text: msg.Text}},
		}
	}
	return turns
}

// TurnsToMessages joins multi-part turns into one text.
func (m *DiscussionMapper) TurnsToMessages(turns []model.StoredTurn) []entity.Message {
	messages := make([]entity.Message, 0, len(turns))
	for _, turn := range turns {
		text := ""
		for _, part := range turn.Parts {
			text += part.Text
		}
		role := entity.MessageRoleModel
		if turn.Role == string(entity.MessageRoleUser) {
			role = entity.MessageRoleUser
		}
		messages = append(messages, entity.Message{Role: role, Text: text})
	}
	return messages
}

func (m *DiscussionMapper) MessagesToHistory(messages []entity.Message) []*chatbot.ChatHistory {
	history := make([]*chatbot.ChatHistory, len(messages))
	for i, msg := range messages {
		history[i] = &chatbot.ChatHistory{Chat: msg.Text, Role: string(msg.Role)}
	}
	return history
}

func (m *DiscussionMapper) DocumentToEntity(doc *docstore.Document) (*entity.DiscussionDocument, error) {
	var stored model.Discussion
	if err := doc.DataTo(&stored); err != nil {
		return nil, err
	}
	out := &entity.DiscussionDocument{
		NoteContent:    stored.NoteContent,
		ChatHistory:    m.TurnsToMessages(stored.ChatHistory),
		Area:           stored.Area,
		Genre:          stored.Genre,
		HasSuggestions: stored.HasSuggestions,
	}
	if stored.LastUpdated != nil {
		out.LastUpdated = *stored.LastUpdated
	}
	return out, nil
}

// DocumentToRecent summarizes a stored discussion for the recent index.
func (m *DiscussionMapper) DocumentToRecent(doc *docstore.Document) entity.RecentDiscussion {
	recent := entity.RecentDiscussion{TopicId: doc.Ref.ID, TopicLabel: doc.Ref.ID}
	var label string
	if err := doc.Field(model.FieldGenre, &label); err == nil && label != "" {
		recent.TopicLabel = label
	} else if err := doc.Field(model.FieldArea, &label); err == nil && label != "" {
		recent.TopicLabel = label
	}
	if t, ok := doc.Time(model.FieldLastUpdated); ok {
		recent.LastUpdated = t
	}
	return recent
}
