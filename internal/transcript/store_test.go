package transcript

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/domain"
	"chat-widget/internal/repository"
)

type failingKV struct {
	getErr    error
	setErr    error
	removeErr error
}

func (f *failingKV) GetItem(context.Context, string) (string, bool, error) {
	return "", false, f.getErr
}

func (f *failingKV) SetItem(context.Context, string, string) error {
	return f.setErr
}

func (f *failingKV) RemoveItem(context.Context, string) error {
	return f.removeErr
}

var fixedClock = domain.Clock{
	Now:    func() time.Time { return time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC) },
	Layout: domain.DefaultTimeLayout,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, kv KeyValue, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock), WithLogger(quietLogger())}, opts...)
	s, err := New(kv, opts...)
	require.NoError(t, err)
	return s
}

func welcome() domain.Message {
	return domain.Message{Role: domain.RoleBot, Content: DefaultWelcome, Time: "09:05"}
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(repository.NewMemoryStore(), WithKey("  "))
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(repository.NewMemoryStore(), WithWelcome(" "))
	require.NoError(t, err)
	require.Equal(t, DefaultKey, s.Key())
	require.Equal(t, DefaultWelcome, s.Welcome().Content)
}

func TestLoad_EmptyStorageYieldsWelcome(t *testing.T) {
	s := newTestStore(t, repository.NewMemoryStore())
	require.Equal(t, []domain.Message{welcome()}, s.Load(context.Background()))
}

func TestLoad_CustomWelcome(t *testing.T) {
	s := newTestStore(t, repository.NewMemoryStore(), WithWelcome("Hi there"))
	got := s.Load(context.Background())
	require.Len(t, got, 1)
	require.Equal(t, domain.RoleBot, got[0].Role)
	require.Equal(t, "Hi there", got[0].Content)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	cases := [][]domain.Message{
		{welcome()},
		{
			welcome(),
			{Role: domain.RoleUser, Content: "hello", Time: "09:06"},
			{Role: domain.RoleBot, Content: "hi there", Time: "09:06"},
		},
		{
			{Role: domain.RoleUser, Content: "quotes \" and <tags> & **stars**\nnewline", Time: "23:59"},
			{Role: domain.RoleBot, Content: "", Time: ""},
			{Role: domain.RoleUser, Content: "unicode: héllo 👋", Time: "00:00"},
		},
	}
	for _, msgs := range cases {
		kv := repository.NewMemoryStore()
		s := newTestStore(t, kv)
		require.NoError(t, s.Save(context.Background(), msgs))
		require.Equal(t, msgs, s.Load(context.Background()))
	}
}

func TestSave_OverwritesPreviousValue(t *testing.T) {
	kv := repository.NewMemoryStore()
	s := newTestStore(t, kv)
	ctx := context.Background()

	first := []domain.Message{{Role: domain.RoleUser, Content: "one", Time: "10:00"}}
	second := []domain.Message{{Role: domain.RoleBot, Content: "two", Time: "10:01"}}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))
	require.Equal(t, second, s.Load(ctx))
}

func TestSave_WireFormat(t *testing.T) {
	kv := repository.NewMemoryStore()
	s := newTestStore(t, kv, WithKey("custom"))
	msgs := []domain.Message{{Role: domain.RoleUser, Content: "hi", Time: "10:00"}}
	require.NoError(t, s.Save(context.Background(), msgs))

	raw, ok, err := kv.GetItem(context.Background(), "custom")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `[{"role":"user","content":"hi","time":"10:00"}]`, raw)
}

func TestClear_IsIdempotent(t *testing.T) {
	kv := repository.NewMemoryStore()
	s := newTestStore(t, kv)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, []domain.Message{{Role: domain.RoleUser, Content: "x", Time: "10:00"}}))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	require.Equal(t, []domain.Message{welcome()}, s.Load(ctx))

	_, ok, err := kv.GetItem(ctx, DefaultKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoad_MalformedStorageYieldsWelcome(t *testing.T) {
	cases := map[string]string{
		"not json":      `{not-json`,
		"wrong shape":   `{"role":"user"}`,
		"unknown role":  `[{"role":"assistant","content":"x","time":"10:00"}]`,
		"empty array":   `[]`,
		"null":          `null`,
		"wrong content": `[{"role":"user","content":12}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			kv := repository.NewMemoryStore()
			require.NoError(t, kv.SetItem(context.Background(), DefaultKey, raw))
			s := newTestStore(t, kv)
			require.Equal(t, []domain.Message{welcome()}, s.Load(context.Background()))
		})
	}
}

func TestLoad_ReadErrorYieldsWelcome(t *testing.T) {
	s := newTestStore(t, &failingKV{getErr: errors.New("disk on fire")})
	require.Equal(t, []domain.Message{welcome()}, s.Load(context.Background()))
}

func TestRead_SurfacesStorageErrors(t *testing.T) {
	s := newTestStore(t, &failingKV{getErr: errors.New("disk on fire")})
	msgs, err := s.Read(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "disk on fire")
	require.Nil(t, msgs)
}

func TestRead_AbsentAndStoredValues(t *testing.T) {
	kv := repository.NewMemoryStore()
	s := newTestStore(t, kv)

	msgs, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.Message{welcome()}, msgs)

	stored := []domain.Message{{Role: domain.RoleUser, Content: "hi", Time: "08:00"}}
	require.NoError(t, s.Save(context.Background(), stored))
	msgs, err = s.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, stored, msgs)
}

func TestSaveAndClear_PropagateWriteErrors(t *testing.T) {
	s := newTestStore(t, &failingKV{setErr: errors.New("quota exceeded"), removeErr: errors.New("locked")})

	err := s.Save(context.Background(), []domain.Message{welcome()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")

	err = s.Clear(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "locked")
}

func TestEncode_NilIsEmptyArray(t *testing.T) {
	raw, err := Encode(nil)
	require.NoError(t, err)
	require.Equal(t, `[]`, raw)
}

func TestDecode_PreservesStoredTime(t *testing.T) {
	msgs, err := Decode(`[{"role":"bot","content":"old","time":"07:45"}]`)
	require.NoError(t, err)
	require.Equal(t, "07:45", msgs[0].Time)
}
