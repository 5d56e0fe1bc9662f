package archive

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/sources"
)

// MemoryArchiver keeps batches in memory. Used when no storage account is
// configured and in tests.
type MemoryArchiver struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	now   func() time.Time
}

var _ Archiver = (*MemoryArchiver)(nil)

func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{
		blobs: make(map[string][]byte),
		now:   time.Now,
	}
}

// SetClock overrides the time source for tests
func (m *MemoryArchiver) SetClock(now func() time.Time) {
	m.now = now
}

func (m *MemoryArchiver) ArchiveBatch(clusterID uuid.UUID, platform models.Platform, posts []sources.RawPost) error {
	at := m.now()
	data, err := encodeBatch(clusterID, platform, posts, at)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[batchName(clusterID, platform, at)] = data
	return nil
}

func (m *MemoryArchiver) Retrieve(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryArchiver) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
