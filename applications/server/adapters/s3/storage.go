package s3

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/donmikel/mailattach/applications/server/interfaces"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Storage struct {
	bucket   string
	uploader uploader
	log      log.Logger
}

// NewStorage streams objects into bucket using the multipart upload manager,
// which accepts bodies of unknown length.
func NewStorage(client *s3.Client, bucket string, logger log.Logger) interfaces.Storage {
	return &s3Storage{
		bucket:   bucket,
		uploader: manager.NewUploader(client),
		log:      logger,
	}
}

func (s *s3Storage) Bucket() string {
	return s.bucket
}

func (s *s3Storage) Write(ctx context.Context, path string, body io.Reader) (int64, error) {
	cr := &countingReader{r: body}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   cr,
	})
	if err != nil {
		return cr.n.Load(), fmt.Errorf("can't upload object s3://%s/%s: %w", s.bucket, path, err)
	}

	level.Debug(s.log).Log("msg", "object uploaded",
		"bucket", s.bucket,
		"path", path,
		"location", out.Location,
	)

	return cr.n.Load(), nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
