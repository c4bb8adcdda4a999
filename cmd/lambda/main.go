package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-widget/handler"
	"chat-widget/internal/app"
	"chat-widget/internal/config"
	"chat-widget/internal/integrations/paramstore"
	"chat-widget/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg.Storage.Backend = config.BackendDynamoDB
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	slog.SetDefault(logger)

	// ---- Parameter Store overrides ----
	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			logger.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		if err := config.ApplyParams(ctx, cfg, params, cfg.ParamPrefix); err != nil {
			logger.Error("failed to apply parameters", "prefix", cfg.ParamPrefix, "err", err)
			os.Exit(1)
		}
	}

	// ---- Session ----
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build chat session", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Session, a.Formatter, handler.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
