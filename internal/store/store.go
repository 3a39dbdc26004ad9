// Package store persists user records and chat documents.
//
// Store is the component handlers talk to. It starts out not ready and
// only becomes usable once a Backend is attached, so a process can accept
// requests while the database connection is still being established (or
// after it failed). Every operation checks readiness before doing anything
// else and reports ErrStoreUnavailable when there is no backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/howard-nolan/chatproxy/internal/metrics"
)

// Backend is a document collection pair (users, chats). Implementations
// must treat UpsertChat as a whole-document replace keyed by chat id and
// FindChat as a lookup on both id and user id, returning ErrNotFound when
// either does not match.
type Backend interface {
	UpsertUser(ctx context.Context, email string, user UserRecord) (*UpsertResult, error)
	UpsertChat(ctx context.Context, chat *Chat) (*UpsertResult, error)
	ListChats(ctx context.Context, userID string) ([]ChatSummary, error)
	FindChat(ctx context.Context, chatID, userID string) (*Chat, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connector opens a Backend.
type Connector func(ctx context.Context) (Backend, error)

// Store gates a Backend behind an explicit ready state.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	closed  bool

	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records operation outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New returns a Store with no backend attached.
func New(opts ...Option) *Store {
	s := &Store{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach makes b the active backend and marks the store ready.
func (s *Store) Attach(b Backend) {
	s.mu.Lock()
	s.backend = b
	s.mu.Unlock()
}

// Connect opens a backend with connect and attaches it. On failure the
// store stays unavailable and the error is logged and returned; nothing
// retries.
//
// Connect usually runs in its own goroutine while the server is already
// accepting requests, so it can finish after Close. In that case the new
// backend is closed straight away and ErrStoreClosed is returned.
func (s *Store) Connect(ctx context.Context, connect Connector) error {
	b, err := connect(ctx)
	if err != nil {
		s.log.Error("database connection failed", zap.Error(err))
		return fmt.Errorf("connecting store: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = b.Close(context.Background())
		s.log.Info("store closed while connecting, dropping backend")
		return ErrStoreClosed
	}
	s.backend = b
	s.mu.Unlock()

	s.log.Info("database connected")
	return nil
}

// Ready reports whether a backend is attached.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend != nil
}

func (s *Store) current() (Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return nil, ErrStoreUnavailable
	}
	return s.backend, nil
}

// SaveUser upserts a user record keyed by its email, merging fields into
// any existing record. Surrounding whitespace is stripped from the email
// before it is used as the key and before it is stored.
func (s *Store) SaveUser(ctx context.Context, user UserRecord) (res *UpsertResult, err error) {
	defer func() { s.observe("save_user", err) }()

	b, err := s.current()
	if err != nil {
		return nil, err
	}

	email := user.Email()
	if email == "" {
		return nil, &ValidationError{Message: "Missing user email"}
	}

	// The backend keys on email and stores the record verbatim, so the
	// stored "email" field must be the same trimmed value as the key.
	// Work on a copy; the caller's map is left alone.
	record := make(UserRecord, len(user))
	for k, v := range user {
		record[k] = v
	}
	record["email"] = email

	res, err = b.UpsertUser(ctx, email, record)
	if err != nil {
		return nil, fmt.Errorf("upserting user %s: %w", email, err)
	}
	s.log.Info("user stored", zap.String("email", email))
	return res, nil
}

// SaveChat replaces the chat document with the same id, or inserts it.
// An empty title is derived from the first user message.
func (s *Store) SaveChat(ctx context.Context, chat *Chat) (res *UpsertResult, err error) {
	defer func() { s.observe("save_chat", err) }()

	b, err := s.current()
	if err != nil {
		return nil, err
	}

	if chat == nil || chat.ID == "" || chat.UserID == "" {
		return nil, &ValidationError{Message: "Missing chat ID or User ID"}
	}

	doc := *chat
	if doc.Title == "" {
		doc.Title = DeriveTitle(doc.Messages)
	}
	if doc.Messages == nil {
		doc.Messages = []ChatMessage{}
	}

	res, err = b.UpsertChat(ctx, &doc)
	if err != nil {
		return nil, fmt.Errorf("upserting chat %s: %w", chat.ID, err)
	}
	s.log.Info("chat saved", zap.String("chat_id", chat.ID))
	return res, nil
}

// ListHistory returns the user's chat summaries, newest first. The result
// is never nil.
func (s *Store) ListHistory(ctx context.Context, userID string) (history []ChatSummary, err error) {
	defer func() { s.observe("get_history", err) }()

	b, err := s.current()
	if err != nil {
		return nil, err
	}

	history, err = b.ListChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing chats for %s: %w", userID, err)
	}
	if history == nil {
		history = []ChatSummary{}
	}
	return history, nil
}

// GetChat returns the chat only if it exists and belongs to userID.
func (s *Store) GetChat(ctx context.Context, chatID, userID string) (chat *Chat, err error) {
	defer func() { s.observe("get_chat", err) }()

	b, err := s.current()
	if err != nil {
		return nil, err
	}

	chat, err = b.FindChat(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding chat %s: %w", chatID, err)
	}
	return chat, nil
}

// Ping checks the backend connection.
func (s *Store) Ping(ctx context.Context) error {
	b, err := s.current()
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

// Close detaches and closes the backend. The store is unavailable
// afterwards and a later Connect will not attach anything.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.closed = true
	s.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close(ctx)
}

func (s *Store) observe(op string, err error) {
	var verr *ValidationError
	switch {
	case err == nil:
		s.metrics.ObserveStore(op, metrics.OutcomeSuccess)
	case errors.Is(err, ErrStoreUnavailable):
		s.metrics.ObserveStore(op, metrics.OutcomeUnavailable)
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveStore(op, metrics.OutcomeNotFound)
	case errors.As(err, &verr):
		s.metrics.ObserveStore(op, metrics.OutcomeInvalid)
	default:
		s.metrics.ObserveStore(op, metrics.OutcomeError)
	}
}
