package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chat-widget/internal/domain"
)

const (
	DefaultKey     = "chatHistory"
	DefaultWelcome = "Hello! I'm your DeepSeek AI assistant. How can I help you today?"
)

// KeyValue is the browser-storage shaped port the transcript is mirrored into.
// GetItem reports ok=false when the key is absent.
type KeyValue interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Store persists a whole transcript under a single key. The in-memory session
// owns the transcript; what is stored here is only a serialized mirror.
type Store struct {
	kv      KeyValue
	key     string
	welcome string
	clock   domain.Clock
	log     *slog.Logger
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		s.key = strings.TrimSpace(key)
	}
}

func WithWelcome(text string) Option {
	return func(s *Store) {
		s.welcome = text
	}
}

func WithClock(c domain.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New creates a Store over kv.
func New(kv KeyValue, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("transcript: key-value store must not be nil")
	}
	s := &Store{
		kv:      kv,
		key:     DefaultKey,
		welcome: DefaultWelcome,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		return nil, errors.New("transcript: key must not be empty")
	}
	if strings.TrimSpace(s.welcome) == "" {
		s.welcome = DefaultWelcome
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Key returns the storage key the transcript lives under.
func (s *Store) Key() string {
	return s.key
}

// Welcome returns the synthetic greeting used when there is no history.
func (s *Store) Welcome() domain.Message {
	return s.clock.Message(domain.RoleBot, s.welcome)
}

// Load returns the persisted transcript, or a transcript holding only the
// welcome message when nothing usable is stored. Read failures are logged and
// otherwise treated as absent history.
func (s *Store) Load(ctx context.Context) []domain.Message {
	msgs, err := s.Read(ctx)
	if err != nil {
		s.log.Warn("transcript read failed; starting without history", "key", s.key, "err", err)
		return []domain.Message{s.Welcome()}
	}
	return msgs
}

// Read is Load without the read-error fallback: a missing, empty or malformed
// value still yields the welcome message, but a storage failure is returned so
// callers can keep what they already hold.
func (s *Store) Read(ctx context.Context) ([]domain.Message, error) {
	raw, ok, err := s.kv.GetItem(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("transcript: read: %w", err)
	}
	if !ok {
		return []domain.Message{s.Welcome()}, nil
	}

	msgs, err := Decode(raw)
	if err != nil {
		s.log.Warn("stored transcript is malformed; starting without history", "key", s.key, "err", err)
		return []domain.Message{s.Welcome()}, nil
	}
	if len(msgs) == 0 {
		return []domain.Message{s.Welcome()}, nil
	}
	return msgs, nil
}

// Save overwrites the stored transcript with msgs.
func (s *Store) Save(ctx context.Context, msgs []domain.Message) error {
	raw, err := Encode(msgs)
	if err != nil {
		return err
	}
	if err := s.kv.SetItem(ctx, s.key, raw); err != nil {
		return fmt.Errorf("transcript: save: %w", err)
	}
	return nil
}

// Clear removes the stored transcript. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.RemoveItem(ctx, s.key); err != nil {
		return fmt.Errorf("transcript: clear: %w", err)
	}
	return nil
}

// Encode serializes msgs as a JSON array of {role, content, time}.
func Encode(msgs []domain.Message) (string, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	buf, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("transcript: encode: %w", err)
	}
	return string(buf), nil
}

// Decode parses a stored transcript. Entries with an unknown role make the
// whole payload invalid.
func Decode(raw string) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("transcript: decode: %w", err)
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("transcript: decode: entry %d has unknown role %q", i, m.Role)
		}
	}
	return msgs, nil
}
