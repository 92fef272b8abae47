package inmemory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/donmikel/mailattach/applications/server/interfaces"
)

const DefaultFreeSpaceInBytes = 100 * 1024 * 1024 // 100 Mb

var ErrNotEnoughSpace = errors.New("not enough free space")

// Storage keeps objects in process memory. It is meant for local runs and tests.
type Storage struct {
	dataByPath map[string][]byte
	freeSpace  int64
	bucket     string
	log        log.Logger
	mutex      sync.RWMutex
}

var _ interfaces.Storage = (*Storage)(nil)

func NewStorage(bucket string, freeSpace int64, logger log.Logger) *Storage {
	if freeSpace <= 0 {
		freeSpace = DefaultFreeSpaceInBytes
	}

	return &Storage{
		bucket:     bucket,
		log:        logger,
		dataByPath: map[string][]byte{},
		freeSpace:  freeSpace,
	}
}

func (m *Storage) Bucket() string {
	return m.bucket
}

func (m *Storage) Write(ctx context.Context, path string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("can't read object body: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	dataLen := int64(len(data))
	available := m.freeSpace + int64(len(m.dataByPath[path]))
	if dataLen > available {
		return 0, ErrNotEnoughSpace
	}

	m.dataByPath[path] = data
	m.freeSpace = available - dataLen

	level.Debug(m.log).Log("msg", "object written",
		"bucket", m.bucket,
		"path", path,
		"size", humanize.Bytes(uint64(dataLen)),
		"free_space", humanize.Bytes(uint64(m.freeSpace)),
	)

	return dataLen, nil
}

// Read returns a reader over the object stored at path.
func (m *Storage) Read(path string) (io.Reader, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	data, ok := m.dataByPath[path]
	if !ok {
		return nil, false
	}

	return bytes.NewReader(data), true
}

// Paths lists stored object paths in lexical order.
func (m *Storage) Paths() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	paths := make([]string, 0, len(m.dataByPath))
	for p := range m.dataByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return paths
}

func (m *Storage) FreeSpace() int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.freeSpace
}
