package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/donmikel/mailattach/applications/server/domain"
)

// save pipes one attachment into the store. There is no retry and a failed
// write is not cleaned up.
func (s *service) save(ctx context.Context, path string, att domain.Attachment, logger log.Logger) (int64, error) {
	start := time.Now()
	n, err := s.storage.Write(ctx, path, att.Body)
	s.observer.RecordUpload(time.Since(start), n, err)
	if err != nil {
		return n, fmt.Errorf("can't save attachment %s: %w", path, err)
	}

	level.Info(logger).Log("msg", "attachment stored",
		"bucket", s.storage.Bucket(),
		"path", path,
		"size", humanize.Bytes(uint64(n)),
		"content_type", att.ContentType,
	)

	return n, nil
}
