package mapper

import (
	"sort"

	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/pkg/docstore"
)

type ChitChatMapper struct{}

func NewChitChatMapper() *ChitChatMapper {
	return &ChitChatMapper{}
}

// DocumentToChat decodes a chat; notes come back oldest first.
func (m *ChitChatMapper) DocumentToChat(doc *docstore.Document) (*entity.ChitChat, error) {
	var stored model.ChitChat
	if err := doc.DataTo(&stored); err != nil {
		return nil, err
	}

	notes := make([]entity.ChitChatNote, len(stored.Notes))
	for i, n := range stored.Notes {
		notes[i] = entity.ChitChatNote{Text: n.Text, Timestamp: n.Timestamp}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Timestamp.Before(notes[j].Timestamp)
	})

	return &entity.ChitChat{
		Id:        doc.Ref.ID,
		Topic:     stored.Topic,
		Category:  stored.Category,
		CreatedAt: stored.CreatedAt,
		Notes:     notes,
	}, nil
}

func (m *ChitChatMapper) DocumentToTopicGroup(doc *docstore.Document) (entity.ChitChatTopicGroup, error) {
	var stored model.ChitChatTopics
	if err := doc.DataTo(&stored); err != nil {
		return entity.ChitChatTopicGroup{}, err
	}
	return entity.ChitChatTopicGroup{Category: doc.Ref.ID, Topics: stored.Topics}, nil
}
