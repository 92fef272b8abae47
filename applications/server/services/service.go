package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/donmikel/mailattach/applications/server"
	"github.com/donmikel/mailattach/applications/server/domain"
	"github.com/donmikel/mailattach/applications/server/interfaces"
	"github.com/donmikel/mailattach/applications/server/metrics"
)

var ErrNotMultipart = errors.New("content type is not multipart")

type service struct {
	storage      interfaces.Storage
	observer     interfaces.Observer
	newNamespace func() string
	logger       log.Logger
}

type Option func(*service)

func WithObserver(o interfaces.Observer) Option {
	return func(s *service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithNamespaceGenerator replaces the random UUID used as the per-request
// folder.
func WithNamespaceGenerator(gen func() string) Option {
	return func(s *service) {
		if gen != nil {
			s.newNamespace = gen
		}
	}
}

func NewService(storage interfaces.Storage, logger log.Logger, opts ...Option) server.AttachmentService {
	s := &service{
		storage:      storage,
		observer:     metrics.Nop(),
		newNamespace: uuid.NewString,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Upload writes every file part of the multipart body to <namespace>/<filename>.
// Each part starts uploading as soon as the reader reaches it; the call returns
// once all started uploads have finished, or with the first upload error.
// Uploads still in flight when another one fails are not cancelled.
func (s *service) Upload(ctx context.Context, contentType string, body io.Reader) (domain.Batch, error) {
	start := time.Now()

	boundary, err := multipartBoundary(contentType)
	if err != nil {
		s.observer.RecordParse(time.Since(start), err)
		return domain.Batch{}, err
	}

	batch := domain.Batch{Namespace: s.newNamespace()}
	logger := log.With(s.logger, "namespace", batch.Namespace)

	var (
		g        errgroup.Group
		objects  []*domain.StoredObject
		parseErr error
	)

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			parseErr = fmt.Errorf("can't read multipart part: %w", err)
			break
		}

		filename := part.FileName()
		if filename == "" {
			// Plain form fields (body text, headers, envelope) are not attachments.
			part.Close()
			continue
		}

		level.Info(logger).Log("msg", "file received", "filename", filename)

		pr, pw := io.Pipe()
		att := domain.Attachment{
			FieldName:   part.FormName(),
			Filename:    filename,
			ContentType: part.Header.Get("Content-Type"),
			Encoding:    part.Header.Get("Content-Transfer-Encoding"),
			Body:        pr,
		}
		obj := &domain.StoredObject{Path: batch.Namespace + "/" + filename}
		objects = append(objects, obj)

		g.Go(func() error {
			n, err := s.save(ctx, obj.Path, att, logger)
			// Unblocks the reader loop if the store stopped consuming the body.
			pr.CloseWithError(err)
			obj.Size = n
			return err
		})

		_, err = io.Copy(pw, part)
		pw.CloseWithError(err)
		part.Close()
		if err != nil {
			parseErr = fmt.Errorf("can't stream attachment %s: %w", filename, err)
			break
		}
	}

	writeErr := g.Wait()
	s.observer.RecordParse(time.Since(start), parseErr)

	switch {
	case writeErr != nil:
		return batch, writeErr
	case parseErr != nil:
		return batch, parseErr
	}

	level.Info(logger).Log("msg", "form parsed", "attachments", len(objects))

	batch.Objects = make([]domain.StoredObject, 0, len(objects))
	for _, obj := range objects {
		batch.Objects = append(batch.Objects, *obj)
	}

	return batch, nil
}

func multipartBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("can't parse content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: %s", ErrNotMultipart, mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrNotMultipart)
	}

	return boundary, nil
}
