package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"chat-widget/internal/domain"
)

const DefaultApology = "Sorry, I encountered an error. Please try again."

// TranscriptStore mirrors the transcript into durable storage. Load never
// fails; it falls back to a welcome-only transcript. Read reports storage
// failures instead.
type TranscriptStore interface {
	Load(ctx context.Context) []domain.Message
	Read(ctx context.Context) ([]domain.Message, error)
	Save(ctx context.Context, msgs []domain.Message) error
	Clear(ctx context.Context) error
}

// Transport sends one user message to the chat backend and returns the reply.
type Transport interface {
	Send(ctx context.Context, text string) (string, error)
}

type State int

const (
	StateIdle State = iota
	StateAwaitingReply
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// ChatSession owns the transcript for one widget. At most one reply may be
// outstanding; the typing placeholder is shown exactly while it is.
type ChatSession struct {
	store     TranscriptStore
	transport Transport
	clock     domain.Clock
	apology   string
	log       *slog.Logger

	mu         sync.Mutex
	transcript []domain.Message
	state      State
}

type Option func(*ChatSession)

func WithClock(c domain.Clock) Option {
	return func(s *ChatSession) {
		s.clock = c
	}
}

// WithApology sets the bot message shown when the backend call fails.
func WithApology(text string) Option {
	return func(s *ChatSession) {
		s.apology = text
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ChatSession) {
		s.log = l
	}
}

type SendOutput struct {
	User   domain.Message
	Reply  domain.Message
	Failed bool
}

// NewChatSession loads the stored transcript (or the welcome message) and
// returns an idle session.
func NewChatSession(ctx context.Context, store TranscriptStore, transport Transport, opts ...Option) (*ChatSession, error) {
	if store == nil {
		return nil, errors.New("usecase: transcript store must not be nil")
	}
	if transport == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	s := &ChatSession{
		store:     store,
		transport: transport,
		apology:   DefaultApology,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if strings.TrimSpace(s.apology) == "" {
		s.apology = DefaultApology
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.transcript = store.Load(ctx)
	return s, nil
}

// Send runs one turn: it appends the user message, waits for the backend, then
// appends exactly one bot message and persists the transcript. Backend
// failures become the apology message and are only logged. Blank input and a
// send while a reply is pending are rejected without touching the transcript.
//
// Storage is the source of truth: the transcript is re-read before the user
// message is appended and again before the reply is, so a clear made by
// another process sharing the storage key is never undone by this save.
func (s *ChatSession) Send(ctx context.Context, text string) (SendOutput, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SendOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}

	// The turn always runs to completion, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.state == StateAwaitingReply {
		s.mu.Unlock()
		return SendOutput{}, newError(ErrorBusy, "reply_pending", nil)
	}
	s.syncLocked(ctx)
	user := s.clock.Message(domain.RoleUser, text)
	s.transcript = append(s.transcript, user)
	s.state = StateAwaitingReply
	s.mu.Unlock()

	reply, err := s.transport.Send(ctx, text)
	failed := err != nil
	if failed {
		s.log.Error("chat backend call failed", "err", err)
		reply = s.apology
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bot := s.clock.Message(domain.RoleBot, reply)
	if s.syncLocked(ctx) {
		s.transcript = append(s.transcript, user, bot)
	} else {
		s.transcript = append(s.transcript, bot)
	}
	s.state = StateIdle

	if err := s.store.Save(ctx, s.copyLocked()); err != nil {
		s.log.Warn("transcript save failed", "err", err)
	}
	return SendOutput{User: user, Reply: bot, Failed: failed}, nil
}

// syncLocked replaces the in-memory transcript with the stored one. On a read
// failure the in-memory copy is kept and false is returned.
func (s *ChatSession) syncLocked(ctx context.Context) bool {
	msgs, err := s.store.Read(ctx)
	if err != nil {
		s.log.Warn("transcript read failed; using in-memory copy", "err", err)
		return false
	}
	s.transcript = msgs
	return true
}

// Clear empties the transcript and removes it from storage. It is refused
// while a reply is pending. The in-memory transcript is emptied even when the
// storage removal fails.
func (s *ChatSession) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingReply {
		return newError(ErrorBusy, "reply_pending", nil)
	}
	s.transcript = nil
	if err := s.store.Clear(ctx); err != nil {
		return newError(ErrorInternal, "storage_clear_error", err)
	}
	return nil
}

// Transcript returns a copy of the current transcript.
func (s *ChatSession) Transcript() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Snapshot returns the transcript and whether the typing placeholder is shown,
// read together.
func (s *ChatSession) Snapshot() ([]domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(), s.state == StateAwaitingReply
}

func (s *ChatSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Typing reports whether the typing placeholder should be visible.
func (s *ChatSession) Typing() bool {
	return s.State() == StateAwaitingReply
}

func (s *ChatSession) copyLocked() []domain.Message {
	out := make([]domain.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}
