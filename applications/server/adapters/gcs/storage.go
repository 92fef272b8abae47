package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/donmikel/mailattach/applications/server/interfaces"
)

// objectWriter is satisfied by *storage.Writer. An object becomes durable only
// when Close returns nil.
type objectWriter interface {
	io.Writer
	Close() error
}

type gcsStorage struct {
	bucket    string
	newWriter func(ctx context.Context, path string) objectWriter
	log       log.Logger
}

// NewStorage writes objects into bucket through a Cloud Storage client.
func NewStorage(client *storage.Client, bucket string, logger log.Logger) interfaces.Storage {
	handle := client.Bucket(bucket)

	return &gcsStorage{
		bucket: bucket,
		newWriter: func(ctx context.Context, path string) objectWriter {
			return handle.Object(path).NewWriter(ctx)
		},
		log: logger,
	}
}

func (g *gcsStorage) Bucket() string {
	return g.bucket
}

func (g *gcsStorage) Write(ctx context.Context, path string, body io.Reader) (int64, error) {
	// Cancelling the writer's context is the only way to abort an upload.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.newWriter(ctx, path)

	n, err := io.Copy(w, body)
	if err != nil {
		cancel()
		_ = w.Close()
		return n, fmt.Errorf("can't copy object gs://%s/%s: %w", g.bucket, path, err)
	}

	if err = w.Close(); err != nil {
		return n, fmt.Errorf("can't finalize object gs://%s/%s: %w", g.bucket, path, err)
	}

	level.Debug(g.log).Log("msg", "object finalized",
		"bucket", g.bucket,
		"path", path,
	)

	return n, nil
}
