package interfaces

import (
	"context"
	"io"
)

// Storage writes objects into a single bucket.
type Storage interface {
	// Write streams body into the object at path and returns the number of bytes
	// written once the store reports the object durable.
	Write(ctx context.Context, path string, body io.Reader) (int64, error)
	Bucket() string
}
