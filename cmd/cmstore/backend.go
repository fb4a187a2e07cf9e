package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/barca7453/ContextMemory/blobstore"
	cmminio "github.com/barca7453/ContextMemory/blobstore/minio"
	cms3 "github.com/barca7453/ContextMemory/blobstore/s3"
	"github.com/barca7453/ContextMemory/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// newBlobStore builds the artifact backend described by cfg.
func newBlobStore(ctx context.Context, cfg config.BackendConfig) (blobstore.BlobStore, error) {
	switch cfg.Type {
	case config.BackendLocal:
		return blobstore.NewLocalStore(cfg.Root), nil

	case config.BackendMinIO:
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return cmminio.NewStore(client, cfg.Bucket, cfg.Prefix), nil

	case config.BackendS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		return cms3.NewStore(client, cfg.Bucket, cfg.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Type)
	}
}
