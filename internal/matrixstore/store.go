package matrixstore

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/obslog"
)

// Store is the process-wide matrix cache: a sync.Map published
// lock-free to readers once an entry exists, with writes serialized
// per source path via a striped set of mutexes keyed by xxhash of the
// resolved path. Entries are never evicted; the store lives for the
// process lifetime, matching spec.md §3's MatrixCacheEntry lifecycle.
type Store struct {
	entries sync.Map // map[string]*Matrix, keyed by resolved absolute path

	delimiter byte

	lockStripes [256]sync.Mutex

	hits   int64
	misses int64
}

// NewStore returns a Store that parses CSV fields on delimiter (',' or
// ';'; both are always accepted regardless, per parseCSV's behavior).
func NewStore(delimiter byte) *Store {
	if delimiter == 0 {
		delimiter = ','
	}
	return &Store{delimiter: delimiter}
}

func (s *Store) stripe(path string) *sync.Mutex {
	h := xxhash.Sum64String(path)
	return &s.lockStripes[h%uint64(len(s.lockStripes))]
}

// Load returns the matrix at path, preferring the binary side-cache
// (path with its extension replaced by .bin) when present. A cache miss
// parses the CSV, publishes the parsed result in-process, and attempts
// to write the side-cache for future process restarts — a failure to
// write the sidecar is logged and does not fail the load, per spec.md
// §4.1.
func (s *Store) Load(path string) (*Matrix, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if v, ok := s.entries.Load(abs); ok {
		atomic.AddInt64(&s.hits, 1)
		return v.(*Matrix), nil
	}

	mu := s.stripe(abs)
	mu.Lock()
	defer mu.Unlock()

	// Re-check: another goroutine may have published while we waited.
	if v, ok := s.entries.Load(abs); ok {
		atomic.AddInt64(&s.hits, 1)
		return v.(*Matrix), nil
	}
	atomic.AddInt64(&s.misses, 1)

	binPath := sideCachePath(abs)
	if m, err := readBinary(binPath); err == nil {
		s.entries.Store(abs, m)
		return m, nil
	}

	m, err := parseCSV(abs, s.delimiter)
	if err != nil {
		return nil, err
	}

	if err := writeBinary(binPath, m); err != nil {
		obslog.Warn("STORE", "failed to write side-cache for %s: %v", abs, err)
	}

	s.entries.Store(abs, m)
	return m, nil
}

// Stats reports cumulative hit/miss counters, exposed via GET /metricas.
func (s *Store) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}
