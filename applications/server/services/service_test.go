package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donmikel/mailattach/applications/server/adapters/inmemory"
)

type filePart struct {
	field, name, content string
}

// newMailBody builds a relay-style body: text fields followed by attachments.
func newMailBody(t *testing.T, fields map[string]string, files ...filePart) (string, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", "application/octet-stream")
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return w.FormDataContentType(), buf
}

func readObject(t *testing.T, st *inmemory.Storage, path string) string {
	t.Helper()

	r, ok := st.Read(path)
	require.True(t, ok, "object %s not found", path)
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(data)
}

func TestUploadTwoAttachments(t *testing.T) {
	st := inmemory.NewStorage("mail", 0, log.NewNopLogger())
	svc := NewService(st, log.NewNopLogger(), WithNamespaceGenerator(func() string { return "ns" }))

	ct, body := newMailBody(t, map[string]string{"plain": "see attached"},
		filePart{field: "attachments[0]", name: "invoice.pdf", content: "pdf"},
		filePart{field: "attachments[1]", name: "photo.jpg", content: ""},
	)

	batch, err := svc.Upload(context.Background(), ct, body)
	require.NoError(t, err)

	assert.Equal(t, "ns", batch.Namespace)
	assert.Equal(t, []string{"ns/invoice.pdf", "ns/photo.jpg"}, st.Paths())
	assert.Equal(t, "pdf", readObject(t, st, "ns/invoice.pdf"))
	assert.Equal(t, "", readObject(t, st, "ns/photo.jpg"))
	assert.Len(t, batch.Objects, 2)
	assert.Equal(t, int64(3), batch.Objects[0].Size)
	assert.Equal(t, int64(0), batch.Objects[1].Size)
}

func TestUploadNoAttachments(t *testing.T) {
	st := inmemory.NewStorage("mail", 0, log.NewNopLogger())
	svc := NewService(st, log.NewNopLogger())

	ct, body := newMailBody(t, map[string]string{"plain": "hello", "html": "<p>hello</p>"})

	batch, err := svc.Upload(context.Background(), ct, body)
	require.NoError(t, err)
	assert.Empty(t, batch.Objects)
	assert.Empty(t, st.Paths())
}

func TestUploadSharesOneNamespacePerRequest(t *testing.T) {
	st := inmemory.NewStorage("mail", 0, log.NewNopLogger())
	svc := NewService(st, log.NewNopLogger())

	const requests = 8
	namespaces := make([]string, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		ct, body := newMailBody(t, nil,
			filePart{field: "a", name: "a.txt", content: "a"},
			filePart{field: "b", name: "b.txt", content: "bb"},
		)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch, err := svc.Upload(context.Background(), ct, body)
			assert.NoError(t, err)
			namespaces[i] = batch.Namespace
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, ns := range namespaces {
		require.NotEmpty(t, ns)
		assert.False(t, seen[ns], "namespace %s reused", ns)
		seen[ns] = true
		assert.Equal(t, "a", readObject(t, st, ns+"/a.txt"))
		assert.Equal(t, "bb", readObject(t, st, ns+"/b.txt"))
	}
	assert.Len(t, st.Paths(), 2*requests)
}

type failingStorage struct {
	inner *inmemory.Storage
	fail  string
}

func (f *failingStorage) Bucket() string { return f.inner.Bucket() }

func (f *failingStorage) Write(ctx context.Context, path string, body io.Reader) (int64, error) {
	if strings.HasSuffix(path, f.fail) {
		return 0, errors.New("quota exceeded")
	}
	return f.inner.Write(ctx, path, body)
}

func TestUploadStoreFailure(t *testing.T) {
	st := &failingStorage{inner: inmemory.NewStorage("mail", 0, log.NewNopLogger()), fail: "bad.bin"}
	svc := NewService(st, log.NewNopLogger(), WithNamespaceGenerator(func() string { return "ns" }))

	ct, body := newMailBody(t, nil,
		filePart{field: "a", name: "good.txt", content: "ok"},
		filePart{field: "b", name: "bad.bin", content: strings.Repeat("x", 1<<20)},
		filePart{field: "c", name: "after.txt", content: "late"},
	)

	_, err := svc.Upload(context.Background(), ct, body)
	require.Error(t, err)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Contains(t, st.inner.Paths(), "ns/good.txt")
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	st := inmemory.NewStorage("mail", 0, log.NewNopLogger())
	svc := NewService(st, log.NewNopLogger())

	_, err := svc.Upload(context.Background(), "application/json", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrNotMultipart)

	_, err = svc.Upload(context.Background(), "multipart/form-data", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNotMultipart)

	_, err = svc.Upload(context.Background(), "", strings.NewReader(""))
	assert.Error(t, err)
}

func TestUploadMalformedBody(t *testing.T) {
	st := inmemory.NewStorage("mail", 0, log.NewNopLogger())
	svc := NewService(st, log.NewNopLogger())

	ct, body := newMailBody(t, nil, filePart{field: "a", name: "a.txt", content: "hello world"})
	truncated := body.Bytes()[:body.Len()-20]

	_, err := svc.Upload(context.Background(), ct, bytes.NewReader(truncated))
	assert.Error(t, err)
}

// gatedStorage blocks the first write until a second write has started,
// which only succeeds if uploads run concurrently.
type gatedStorage struct {
	*inmemory.Storage
	mu      sync.Mutex
	writes  int
	started chan struct{}
}

func (g *gatedStorage) Write(ctx context.Context, path string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	g.writes++
	first := g.writes == 1
	g.mu.Unlock()

	if first {
		select {
		case <-g.started:
		case <-time.After(5 * time.Second):
			return 0, errors.New("second upload never started")
		}
	} else {
		close(g.started)
	}

	return g.Storage.Write(ctx, path, bytes.NewReader(data))
}

func TestUploadRunsWritersConcurrently(t *testing.T) {
	st := &gatedStorage{
		Storage: inmemory.NewStorage("mail", 0, log.NewNopLogger()),
		started: make(chan struct{}),
	}
	svc := NewService(st, log.NewNopLogger(), WithNamespaceGenerator(func() string { return "ns" }))

	ct, body := newMailBody(t, nil,
		filePart{field: "a", name: "one.txt", content: "1"},
		filePart{field: "b", name: "two.txt", content: "2"},
	)

	batch, err := svc.Upload(context.Background(), ct, body)
	require.NoError(t, err)
	assert.Len(t, batch.Objects, 2)
	assert.Equal(t, []string{"ns/one.txt", "ns/two.txt"}, st.Paths())
}
