package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatService maintains per-visitor chat sessions: an append-only message
// log with unread-count and presence bookkeeping. Whole-document writes are
// last-write-wins; the unread count can lose updates under concurrent admin
// polling, which is acceptable for this domain.
type ChatService struct {
	store  kv.Store
	logger *zap.Logger
}

func NewChatService(store kv.Store) *ChatService {
	return &ChatService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// PostMessage appends a message to the session, creating the session on
// first message. The unread count increments only for user-sent messages.
func (s *ChatService) PostMessage(ctx context.Context, sessionID, sender, text string) (*models.ChatSession, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.PostMessage")
	defer span.End()

	if sessionID == "" || text == "" {
		return nil, fmt.Errorf("%w: sessionId and text", ErrMissingField)
	}
	if sender != models.SenderUser && sender != models.SenderAdmin {
		return nil, fmt.Errorf("%w: sender must be user or admin", ErrMissingField)
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		session = &models.ChatSession{ID: sessionID, Messages: []models.ChatMessage{}}
	}

	msg := models.ChatMessage{
		ID:        uuid.New().String(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	session.Messages = append(session.Messages, msg)
	session.LastMessage = text
	session.LastTimestamp = msg.Timestamp
	if sender == models.SenderUser {
		session.UnreadCount++
	}

	if err := s.save(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	util.ChatMessagesTotal.WithLabelValues(sender).Inc()
	return session, nil
}

// GetMessages returns the full session document. Missing sessions read as
// empty; the first message is what creates a session. This is a pure read:
// clearing the unread count is MarkRead's job.
func (s *ChatService) GetMessages(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingField)
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &models.ChatSession{ID: sessionID, Messages: []models.ChatMessage{}}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return session, nil
}

// MarkRead clears the unread count. No-ops on missing sessions and on
// sessions with nothing unread.
func (s *ChatService) MarkRead(ctx context.Context, sessionID string) error {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if session.UnreadCount == 0 {
		return nil
	}

	session.UnreadCount = 0
	if err := s.save(ctx, session); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// ListSessions returns admin-inbox summaries, most recent activity first.
func (s *ChatService) ListSessions(ctx context.Context) ([]models.ChatSummary, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.ListSessions")
	defer span.End()

	var keys []string
	cursor := ""
	for {
		page, err := s.store.List(ctx, models.PrefixChatSession, 100, cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		keys = append(keys, page.Keys...)
		if page.Complete {
			break
		}
		cursor = page.Cursor
	}

	summaries := make([]models.ChatSummary, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var session models.ChatSession
		if err := json.Unmarshal(data, &session); err != nil {
			s.logger.Warn("Discarding unparseable chat session", zap.String("key", key))
			continue
		}
		summaries = append(summaries, models.ChatSummary{
			ID:            session.ID,
			LastMessage:   session.LastMessage,
			LastTimestamp: session.LastTimestamp,
			UnreadCount:   session.UnreadCount,
			IsOnline:      session.IsOnline,
			LastSeen:      session.LastSeen,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastTimestamp > summaries[j].LastTimestamp
	})
	return summaries, nil
}

// Heartbeat marks the visitor online. A heartbeat never creates a session;
// only a message does.
func (s *ChatService) Heartbeat(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionId", ErrMissingField)
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	session.IsOnline = true
	session.LastSeen = time.Now().UnixMilli()
	if err := s.save(ctx, session); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *ChatService) load(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	data, err := s.store.Get(ctx, models.PrefixChatSession+sessionID)
	if err != nil {
		return nil, err
	}
	var session models.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat session: %w", err)
	}
	return &session, nil
}

func (s *ChatService) save(ctx context.Context, session *models.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal chat session: %w", err)
	}
	return s.store.Put(ctx, models.PrefixChatSession+session.ID, data, 0)
}
