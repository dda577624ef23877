package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"orderbridge/internal/archive"
	"orderbridge/internal/cli"
	"orderbridge/internal/config"
	"orderbridge/internal/integrations/blobstore"
	"orderbridge/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *archive.Store
	open := func(ctx context.Context) (cli.Archive, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		sessionRepo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable)
		if err != nil {
			return nil, err
		}
		bundles, err := blobstore.New(awss3.NewFromConfig(awsCfg), cfg.SessionBucket)
		if err != nil {
			return nil, err
		}
		store, err = archive.New(bundles, sessionRepo,
			archive.WithLocalDir(cfg.SessionDir),
			archive.WithUploadTimeout(cfg.UploadTimeout),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	err := cli.NewRootCommand(open).ExecuteContext(ctx)
	if store != nil {
		// Saves outlive an interrupted wait; let them settle before exiting.
		_ = store.Flush(context.Background())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
