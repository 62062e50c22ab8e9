package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/franksops/gomedia/adapter"
	"github.com/franksops/gomedia/config"
	"github.com/franksops/gomedia/engine"
)

// buildRegistry registers a factory for every adapter that has enough
// configuration to open, in the order local, bolt, s3, gcs.
func buildRegistry(cfg *config.Config, logger *zap.Logger, opts engine.TransferOptions) (*adapter.Registry, error) {
	reg := adapter.NewRegistry()

	if root := cfg.Local.Root; root != "" {
		verify := cfg.Transfer.Verify
		err := reg.Register("local", func(ctx context.Context) (adapter.Adapter, error) {
			if err := os.MkdirAll(root, 0755); err != nil {
				return nil, fmt.Errorf("failed to create local root: %w", err)
			}
			return adapter.NewLocalAdapter(root).
				WithLogger(logger.Named("local")).
				WithTransfer(opts).
				WithVerify(verify), nil
		})
		if err != nil {
			return nil, err
		}
	}

	if dbPath := cfg.Bolt.Path; dbPath != "" {
		err := reg.Register("bolt", func(ctx context.Context) (adapter.Adapter, error) {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			a, err := adapter.OpenBoltAdapter(dbPath)
			if err != nil {
				return nil, err
			}
			return a.WithLogger(logger.Named("bolt")), nil
		})
		if err != nil {
			return nil, err
		}
	}

	if s3cfg := cfg.S3; s3cfg.Bucket != "" {
		err := reg.Register("s3", func(ctx context.Context) (adapter.Adapter, error) {
			return adapter.NewS3Adapter(ctx, adapter.S3Config{
				Bucket:         s3cfg.Bucket,
				Region:         s3cfg.Region,
				Prefix:         s3cfg.Prefix,
				AccessKeyID:    s3cfg.AccessKeyID,
				SecretKey:      s3cfg.SecretAccessKey,
				Endpoint:       s3cfg.Endpoint,
				ForcePathStyle: s3cfg.ForcePathStyle,
			},
				adapter.WithS3Logger(logger.Named("s3")),
				adapter.WithS3Transfer(opts),
			)
		})
		if err != nil {
			return nil, err
		}
	}

	if gcscfg := cfg.GCS; gcscfg.Bucket != "" {
		err := reg.Register("gcs", func(ctx context.Context) (adapter.Adapter, error) {
			a, err := adapter.NewGCSAdapter(ctx, adapter.GCSConfig{
				Bucket:          gcscfg.Bucket,
				Prefix:          gcscfg.Prefix,
				CredentialsFile: gcscfg.CredentialsFile,
				Endpoint:        gcscfg.Endpoint,
			})
			if err != nil {
				return nil, err
			}
			return a.WithLogger(logger.Named("gcs")).WithTransfer(opts), nil
		})
		if err != nil {
			return nil, err
		}
	}

	return reg, nil
}
