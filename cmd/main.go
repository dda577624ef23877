package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"orderbridge/handler"
	"orderbridge/internal/archive"
	"orderbridge/internal/config"
	"orderbridge/internal/integrations/blobstore"
	"orderbridge/internal/integrations/paramstore"
	"orderbridge/internal/metrics"
	"orderbridge/internal/repository"
	"orderbridge/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.LoadAdmin()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	sessionRepo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable)
	if err != nil {
		slog.Error("failed to create session repository", "err", err)
		os.Exit(1)
	}
	bundles, err := blobstore.New(awss3.NewFromConfig(awsCfg), cfg.SessionBucket)
	if err != nil {
		slog.Error("failed to create bundle store", "err", err)
		os.Exit(1)
	}

	store, err := archive.New(bundles, sessionRepo,
		archive.WithLocalDir(cfg.SessionDir),
		archive.WithUploadTimeout(cfg.UploadTimeout),
		archive.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		slog.Error("failed to create session archive", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	admin, err := usecase.NewSessionAdmin(store, ssmClient, cfg.ParamPrefix)
	if err != nil {
		slog.Error("failed to create session admin", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(admin)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
