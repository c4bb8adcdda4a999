package app

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"chat-widget/internal/config"
	"chat-widget/internal/domain"
	"chat-widget/internal/integrations/chatapi"
	"chat-widget/internal/render"
	"chat-widget/internal/repository"
	"chat-widget/internal/transcript"
	"chat-widget/internal/usecase"
)

// App holds the wired session shared by the HTTP server, the CLI and the
// Lambda handler.
type App struct {
	Session   *usecase.ChatSession
	Formatter render.Formatter

	closers []func() error
}

// Close releases storage handles opened by Build.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build wires storage, transport and session from cfg.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{}

	kv, err := a.openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	clock := domain.Clock{Layout: cfg.Session.TimeLayout}
	store, err := transcript.New(kv,
		transcript.WithKey(cfg.Storage.Key),
		transcript.WithWelcome(cfg.Session.WelcomeMessage),
		transcript.WithClock(clock),
		transcript.WithLogger(log),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	transport, err := NewTransport(cfg.ChatAPI)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	formatter, err := render.New(render.Mode(cfg.Session.RenderMode))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	session, err := usecase.NewChatSession(ctx, store, transport,
		usecase.WithClock(clock),
		usecase.WithApology(cfg.Session.ApologyMessage),
		usecase.WithLogger(log),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Session = session
	a.Formatter = formatter
	log.Info("chat session ready",
		"storage", cfg.Storage.Backend,
		"endpoint", transport.URL(),
		"messages", len(session.Transcript()),
	)
	return a, nil
}

// NewTransport builds the chat API client from its config section.
func NewTransport(cfg config.ChatAPIConfig) (*chatapi.Client, error) {
	opts := []chatapi.Option{
		chatapi.WithBaseURL(cfg.BaseURL),
		chatapi.WithPath(cfg.Path),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, chatapi.WithTimeout(cfg.Timeout))
	}
	for name, value := range cfg.Headers {
		opts = append(opts, chatapi.WithHeader(name, value))
	}
	return chatapi.NewClient(cfg.RequestField, cfg.ReplyPath, opts...)
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig) (transcript.KeyValue, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil
	case config.BackendSQLite:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		client, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, repository.WithTTL(cfg.DynamoTTL))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("app: unknown storage backend %q", cfg.Backend)
	}
}
