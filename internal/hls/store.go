package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MinSegmentBytes is the validity threshold for a stored segment. Anything at
// or below this size is treated as an error page rather than real media, both
// when deciding a probe candidate matched and when deciding a cached file can
// be skipped on re-run.
const MinSegmentBytes = 1000

// StoredSegment is one cached segment on disk.
type StoredSegment struct {
	Index     int
	Filename  string
	Path      string
	SizeBytes int64
}

// Store is the on-disk idempotent segment cache under {outputDir}/chunks.
// Segments are keyed by their final filename; re-running a session against
// the same directory skips everything already valid.
type Store struct {
	dir string
}

// NewStore creates (if needed) and opens the chunks directory under outputDir.
func NewStore(outputDir string) (*Store, error) {
	dir := filepath.Join(outputDir, "chunks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chunks dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the chunks directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path a segment filename maps to.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// Has reports whether a valid segment is already cached under filename.
func (s *Store) Has(filename string) bool {
	info, err := os.Stat(s.Path(filename))
	if err != nil {
		return false
	}
	return info.Size() > MinSegmentBytes
}

// Put writes a segment atomically via temp file + rename, so a crashed run
// never leaves a half-written file that Has would accept.
func (s *Store) Put(filename string, data []byte) error {
	path := s.Path(filename)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename segment: %w", err)
	}
	return nil
}

// ListOrdered returns all valid segments matching the pattern, sorted by the
// numeric index parsed from each filename. Files that do not parse under the
// pattern (stray downloads, temp files) are ignored.
func (s *Store) ListOrdered(p NamingPattern) ([]StoredSegment, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read chunks dir: %w", err)
	}

	var segments []StoredSegment
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		index, err := p.ParseIndex(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() <= MinSegmentBytes {
			continue
		}
		segments = append(segments, StoredSegment{
			Index:     index,
			Filename:  e.Name(),
			Path:      filepath.Join(s.dir, e.Name()),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })
	return segments, nil
}
