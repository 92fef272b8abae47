package adapters

import (
	"context"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	s3client "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-kit/log"

	"github.com/donmikel/mailattach/applications/server/adapters/gcs"
	"github.com/donmikel/mailattach/applications/server/adapters/inmemory"
	"github.com/donmikel/mailattach/applications/server/adapters/s3"
	"github.com/donmikel/mailattach/applications/server/config"
	"github.com/donmikel/mailattach/applications/server/interfaces"
)

// NewStorage builds the backend named in conf. The returned close function
// releases the underlying client and is never nil.
func NewStorage(ctx context.Context, conf config.Storage, logger log.Logger) (interfaces.Storage, func() error, error) {
	noop := func() error { return nil }
	logger = log.With(logger, "backend", conf.Backend)

	switch conf.Backend {
	case config.BackendGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("can't create cloud storage client: %w", err)
		}
		return gcs.NewStorage(client, conf.Bucket, logger), client.Close, nil

	case config.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("can't load aws config: %w", err)
		}
		return s3.NewStorage(s3client.NewFromConfig(awsCfg), conf.Bucket, logger), noop, nil

	case config.BackendMemory:
		return inmemory.NewStorage(conf.Bucket, conf.FreeSpaceBytes, logger), noop, nil
	}

	return nil, noop, fmt.Errorf("unknown storage backend %q", conf.Backend)
}
