package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/mapper"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"
	"discussion-companion-be/pkg/events"

	"github.com/google/uuid"
)

const (
	chitChatModule = "ChitChat"

	topicInstruction  = "You are a creative assistant who generates conversation starters for couples. Your response MUST be a single, thought-provoking question or topic. Do not add any extra text, quotation marks, or labels like 'Topic:'. Just provide the sentence itself."
	expandInstruction = "You are a helpful assistant for couples. Given a conversation topic, provide 3-5 thought-provoking follow-up questions or related ideas to help deepen the discussion. Present them as a simple, un-numbered list, with each item on a new line."
	expandedPrefix    = "✨ Expanded Ideas:\n"

	chatListLimit  = 200
	topicListLimit = 100
)

type IChitChatService interface {
	GetPreferences(ctx context.Context, identity entity.Identity) (*entity.ChitChatPreferences, error)
	ToggleCategory(ctx context.Context, identity entity.Identity, req *dto.ToggleCategoryRequest) (*entity.ChitChatPreferences, error)
	// AllCategories is every enabled category plus every category with topics.
	AllCategories(ctx context.Context, identity entity.Identity) ([]string, error)
	ListUserTopics(ctx context.Context, identity entity.Identity) ([]entity.ChitChatTopicGroup, error)
	AddCustomTopic(ctx context.Context, identity entity.Identity, req *dto.AddTopicRequest) ([]entity.ChitChatTopicGroup, error)
	GenerateTopic(ctx context.Context, identity entity.Identity) (*dto.GeneratedTopicResponse, error)
	SaveChat(ctx context.Context, identity entity.Identity, req *dto.SaveChatRequest) (*entity.ChitChat, error)
	ListChats(ctx context.Context, identity entity.Identity) ([]*entity.ChitChat, error)
	GetChat(ctx context.Context, identity entity.Identity, chatID string) (*entity.ChitChat, error)
	AddNote(ctx context.Context, identity entity.Identity, chatID string, req *dto.AddNoteRequest) (*entity.ChitChat, error)
	ExpandTopic(ctx context.Context, identity entity.Identity, chatID string) (*entity.ChitChat, error)
}

type chitChatService struct {
	store     docstore.Store
	generator chatbot.Generator
	tenant    string
	mapper    *mapper.ChitChatMapper
	publisher events.Publisher
	logger    logger.ILogger
	pick      func(n int) int
}

func NewChitChatService(store docstore.Store, generator chatbot.Generator, tenant string, publisher events.Publisher, log logger.ILogger) IChitChatService {
	return &chitChatService{
		store:     store,
		generator: generator,
		tenant:    tenant,
		mapper:    mapper.NewChitChatMapper(),
		publisher: publisher,
		logger:    log,
		pick:      rand.Intn,
	}
}

func (s *chitChatService) coll(identity entity.Identity, name string) docstore.CollectionRef {
	return docstore.CollectionRef{Tenant: s.tenant, UserID: identity.UserId, Collection: name}
}

func (s *chitChatService) preferencesRef(identity entity.Identity) docstore.Ref {
	return s.coll(identity, model.ChitChatPreferencesCollection).Doc(model.ChitChatPreferencesDoc)
}

func (s *chitChatService) GetPreferences(ctx context.Context, identity entity.Identity) (*entity.ChitChatPreferences, error) {
	ref := s.preferencesRef(identity)
	doc, err := s.store.Get(ctx, ref)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	if doc != nil && doc.Has("categories") {
		var stored model.ChitChatPreferences
		if err := doc.DataTo(&stored); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
		return &entity.ChitChatPreferences{Categories: stored.Categories}, nil
	}

	defaults := append([]string(nil), entity.DefaultChitChatCategories...)
	if err := s.store.Set(ctx, ref, docstore.Fields{"categories": defaults}); err != nil {
		return nil, fmt.Errorf("seed preferences: %w", err)
	}
	return &entity.ChitChatPreferences{Categories: defaults}, nil
}

func (s *chitChatService) ToggleCategory(ctx context.Context, identity entity.Identity, req *dto.ToggleCategoryRequest) (*entity.ChitChatPreferences, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, apperror.ErrInvalidInput
	}
	prefs, err := s.GetPreferences(ctx, identity)
	if err != nil {
		return nil, err
	}

	next := make([]string, 0, len(prefs.Categories)+1)
	found := false
	for _, c := range prefs.Categories {
		if c == category {
			found = true
			continue
		}
		next = append(next, c)
	}
	if !found {
		next = append(next, category)
	}

	if err := s.store.Set(ctx, s.preferencesRef(identity), docstore.Fields{"categories": next}, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	return &entity.ChitChatPreferences{Categories: next}, nil
}

func (s *chitChatService) ListUserTopics(ctx context.Context, identity entity.Identity) ([]entity.ChitChatTopicGroup, error) {
	coll := s.coll(identity, model.ChitChatTopicsCollection)
	docs, err := s.store.List(ctx, coll, topicListLimit)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	if len(docs) == 0 {
		groups := make([]entity.ChitChatTopicGroup, 0, len(entity.DefaultChitChatCategories))
		for _, category := range entity.DefaultChitChatCategories {
			topics := []string{entity.DefaultChitChatTopics[category]}
			if err := s.store.Set(ctx, coll.Doc(category), docstore.Fields{"topics": topics}); err != nil {
				return nil, fmt.Errorf("seed topics: %w", err)
			}
			groups = append(groups, entity.ChitChatTopicGroup{Category: category, Topics: topics})
		}
		sortGroups(groups)
		return groups, nil
	}

	groups := make([]entity.ChitChatTopicGroup, 0, len(docs))
	for _, doc := range docs {
		group, err := s.mapper.DocumentToTopicGroup(doc)
		if err != nil {
			return nil, fmt.Errorf("decode topics %q: %w", doc.Ref.ID, err)
		}
		groups = append(groups, group)
	}
	sortGroups(groups)
	return groups, nil
}

func sortGroups(groups []entity.ChitChatTopicGroup) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
}

func (s *chitChatService) AllCategories(ctx context.Context, identity entity.Identity) ([]string, error) {
	prefs, err := s.GetPreferences(ctx, identity)
	if err != nil {
		return nil, err
	}
	groups, err := s.ListUserTopics(ctx, identity)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(prefs.Categories)+len(groups))
	for _, c := range prefs.Categories {
		set[c] = struct{}{}
	}
	for _, g := range groups {
		set[g.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *chitChatService) AddCustomTopic(ctx context.Context, identity entity.Identity, req *dto.AddTopicRequest) ([]entity.ChitChatTopicGroup, error) {
	topic := strings.TrimSpace(req.Topic)
	category := strings.TrimSpace(req.Category)
	if topic == "" || category == "" {
		return nil, apperror.ErrInvalidInput
	}

	ref := s.coll(identity, model.ChitChatTopicsCollection).Doc(category)
	if err := s.store.Set(ctx, ref, docstore.Fields{"topics": docstore.ArrayUnion(topic)}, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("add topic: %w", err)
	}

	prefs, err := s.GetPreferences(ctx, identity)
	if err != nil {
		return nil, err
	}
	known := false
	for _, c := range prefs.Categories {
		if c == category {
			known = true
			break
		}
	}
	if !known {
		if err := s.store.Set(ctx, s.preferencesRef(identity), docstore.Fields{"categories": docstore.ArrayUnion(category)}, docstore.Merge()); err != nil {
			return nil, fmt.Errorf("add category: %w", err)
		}
	}

	return s.ListUserTopics(ctx, identity)
}

func (s *chitChatService) GenerateTopic(ctx context.Context, identity entity.Identity) (*dto.GeneratedTopicResponse, error) {
	prefs, err := s.GetPreferences(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(prefs.Categories) == 0 {
		return nil, apperror.ErrNoCategories
	}

	text, err := s.generator.Generate(ctx, chatbot.Request{
		Prompt:            fmt.Sprintf("Generate a conversation starter for a couple interested in these themes: %s.", strings.Join(prefs.Categories, ", ")),
		SystemInstruction: topicInstruction,
	})
	if err != nil {
		s.logger.Warn(chitChatModule, "Error generating topic", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	return &dto.GeneratedTopicResponse{
		Topic:    strings.TrimSpace(text),
		Category: prefs.Categories[s.pick(len(prefs.Categories))],
	}, nil
}

func (s *chitChatService) SaveChat(ctx context.Context, identity entity.Identity, req *dto.SaveChatRequest) (*entity.ChitChat, error) {
	if strings.TrimSpace(req.Note) == "" {
		return nil, apperror.ErrEmptyNote
	}

	ref := s.coll(identity, model.ChitChatChatsCollection).Doc(uuid.NewString())
	fields := docstore.Fields{
		"topic":     req.Topic,
		"category":  req.Category,
		"createdAt": docstore.ServerTimestamp,
		"notes":     docstore.ArrayUnion(noteValue(req.Note)),
	}
	if err := s.store.Set(ctx, ref, fields); err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}

	chat, err := s.readChat(ctx, ref)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		ev := events.New(events.ChitChatSaved, map[string]interface{}{
			"user_id":  identity.UserId,
			"chat_id":  chat.Id,
			"category": chat.Category,
		})
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn(chitChatModule, "Failed to publish event", map[string]interface{}{"error": err.Error()})
		}
	}
	return chat, nil
}

func noteValue(text string) map[string]any {
	return map[string]any{"text": text, "timestamp": docstore.ServerTimestamp}
}

// ListChats returns chats newest first.
func (s *chitChatService) ListChats(ctx context.Context, identity entity.Identity) ([]*entity.ChitChat, error) {
	docs, err := s.store.List(ctx, s.coll(identity, model.ChitChatChatsCollection), chatListLimit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	chats := make([]*entity.ChitChat, 0, len(docs))
	for _, doc := range docs {
		chat, err := s.mapper.DocumentToChat(doc)
		if err != nil {
			s.logger.Warn(chitChatModule, "Skipping undecodable chat", map[string]interface{}{
				"chat_id": doc.Ref.ID,
				"error":   err.Error(),
			})
			continue
		}
		chats = append(chats, chat)
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (s *chitChatService) GetChat(ctx context.Context, identity entity.Identity, chatID string) (*entity.ChitChat, error) {
	return s.readChat(ctx, s.coll(identity, model.ChitChatChatsCollection).Doc(chatID))
}

func (s *chitChatService) readChat(ctx context.Context, ref docstore.Ref) (*entity.ChitChat, error) {
	doc, err := s.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("chat %q: %w", ref.ID, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("read chat: %w", err)
	}
	return s.mapper.DocumentToChat(doc)
}

func (s *chitChatService) AddNote(ctx context.Context, identity entity.Identity, chatID string, req *dto.AddNoteRequest) (*entity.ChitChat, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperror.ErrEmptyNote
	}
	return s.appendNote(ctx, identity, chatID, text)
}

func (s *chitChatService) appendNote(ctx context.Context, identity entity.Identity, chatID, text string) (*entity.ChitChat, error) {
	ref := s.coll(identity, model.ChitChatChatsCollection).Doc(chatID)
	if _, err := s.readChat(ctx, ref); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, ref, docstore.Fields{"notes": docstore.ArrayUnion(noteValue(text))}, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	return s.readChat(ctx, ref)
}

func (s *chitChatService) ExpandTopic(ctx context.Context, identity entity.Identity, chatID string) (*entity.ChitChat, error) {
	chat, err := s.GetChat(ctx, identity, chatID)
	if err != nil {
		return nil, err
	}

	text, err := s.generator.Generate(ctx, chatbot.Request{
		Prompt:            fmt.Sprintf("Expand on this topic: \"%s\"", chat.Topic),
		SystemInstruction: expandInstruction,
	})
	if err != nil {
		s.logger.Warn(chitChatModule, "Error expanding topic", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return nil, err
	}
	return s.appendNote(ctx, identity, chatID, expandedPrefix+text)
}
