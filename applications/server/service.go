package server

import (
	"context"
	"io"

	"github.com/donmikel/mailattach/applications/server/domain"
)

type AttachmentService interface {
	Upload(ctx context.Context, contentType string, body io.Reader) (domain.Batch, error)
}
