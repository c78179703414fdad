package matrixstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/reconerrors"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_Load_ParsesCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1,2\n3,4\n")

	s := NewStore(',')
	m, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 2, m.Cols)
	assert.Equal(t, []float64{1, 2, 3, 4}, m.Data)
}

func TestStore_Load_SkipsBlankAndNonNumericLines(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "x,y\n1,2\n\n   \n3,4\n")

	s := NewStore(',')
	m, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows)
}

func TestStore_Load_SemicolonDelimiterAccepted(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1;2\n3;4\n")

	s := NewStore(',')
	m, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, m.Data)
}

func TestStore_Load_RaggedRowIsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1,2\n3,4,5\n")

	s := NewStore(',')
	_, err := s.Load(path)
	require.Error(t, err)
	assert.True(t, reconerrors.Is(err, reconerrors.Malformed))
}

func TestStore_Load_NonNumericTokenIsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1,abc\n3,4\n")

	s := NewStore(',')
	_, err := s.Load(path)
	require.Error(t, err)
	assert.True(t, reconerrors.Is(err, reconerrors.Malformed))
}

func TestStore_Load_MissingFileIsNotFound(t *testing.T) {
	s := NewStore(',')
	_, err := s.Load("/nonexistent/path/H.csv")
	require.Error(t, err)
	assert.True(t, reconerrors.Is(err, reconerrors.NotFound))
}

func TestStore_Load_CacheIdempotence(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1,2\n3,4\n")

	s := NewStore(',')
	m1, err := s.Load(path)
	require.NoError(t, err)
	m2, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, m1.Data, m2.Data)
}

func TestStore_Load_BinarySideCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1,2\n3,4\n")

	s := NewStore(',')
	_, err := s.Load(path)
	require.NoError(t, err)

	binPath := sideCachePath(path)
	require.FileExists(t, binPath)

	require.NoError(t, os.Remove(path))

	s2 := NewStore(',')
	m, err := s2.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, m.Data)
}

func TestStore_Load_ConcurrentLoadsDoNotCorruptSideCache(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "H.csv", "1,2\n3,4\n5,6\n")

	s := NewStore(',')
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := s.Load(path)
			assert.NoError(t, err)
			assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, m.Data)
		}()
	}
	wg.Wait()
}

func TestMatrix_MulVec(t *testing.T) {
	m := &Matrix{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}
	got := m.MulVec([]float64{1, 1})
	assert.Equal(t, []float64{3, 7}, got)
}

func TestMatrix_TransposeMulVec(t *testing.T) {
	m := &Matrix{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}
	got := m.TransposeMulVec([]float64{1, 0})
	assert.Equal(t, []float64{1, 2}, got)
}
