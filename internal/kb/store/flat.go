package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kart-io/logger"
)

// flatMagic identifies the on-disk index format.
const flatMagic uint32 = 0x4F4E4258 // "ONBX"

// FlatStore is a file-backed, brute-force inner-product index. The whole
// index is held in memory as an immutable snapshot; concurrent searches
// share it without locking, and Build/Load swap the snapshot under a
// write lock.
type FlatStore struct {
	indexPath    string
	metadataPath string

	mu   sync.RWMutex
	dim  int
	rows []Row
}

// NewFlatStore creates a flat store persisting to the given paths. Call
// Load to read a previously built index.
func NewFlatStore(indexPath, metadataPath string) *FlatStore {
	return &FlatStore{
		indexPath:    indexPath,
		metadataPath: metadataPath,
	}
}

// Build replaces the index with the given rows and persists both the
// vector file and the metadata sidecar.
func (s *FlatStore) Build(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("cannot build an empty index")
	}

	dim := len(rows[0].Vector)
	for i, row := range rows {
		if len(row.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch at row %d: got %d, want %d", i, len(row.Vector), dim)
		}
	}

	if err := s.persist(rows, dim); err != nil {
		return err
	}

	s.mu.Lock()
	s.rows = rows
	s.dim = dim
	s.mu.Unlock()

	logger.Infof("Built flat index: %d rows, dim %d", len(rows), dim)
	return nil
}

// Load reads the index and metadata files, verifies their alignment, and
// installs the result as the current snapshot. Any mismatch between row
// count and metadata count fails loudly rather than risk misaligned
// search results.
func (s *FlatStore) Load(ctx context.Context) error {
	vectors, dim, err := s.readVectors()
	if err != nil {
		return err
	}

	metaBytes, err := os.ReadFile(s.metadataPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %w", err)
	}

	var metadata []ChunkMetadata
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return fmt.Errorf("failed to parse metadata file: %w", err)
	}

	if len(metadata) != len(vectors) {
		return fmt.Errorf("index/metadata misalignment: %d vectors, %d metadata records", len(vectors), len(metadata))
	}

	rows := make([]Row, len(vectors))
	for i := range vectors {
		rows[i] = Row{Vector: vectors[i], Meta: metadata[i]}
	}

	s.mu.Lock()
	s.rows = rows
	s.dim = dim
	s.mu.Unlock()

	logger.Infof("Loaded flat index from %s: %d rows, dim %d", s.indexPath, len(rows), dim)
	return nil
}

// Search scans all rows and returns the topK highest inner products in
// descending order.
func (s *FlatStore) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	s.mu.RLock()
	rows := s.rows
	dim := s.dim
	s.mu.RUnlock()

	if rows == nil {
		return nil, ErrNotLoaded
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), dim)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		var score float32
		for i, v := range row.Vector {
			score += v * vector[i]
		}
		hits = append(hits, Hit{Score: score, Meta: row.Meta})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of indexed rows.
func (s *FlatStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

// Close is a no-op for the file-backed store.
func (s *FlatStore) Close(ctx context.Context) error {
	return nil
}

// persist writes the vector file and the metadata sidecar. The metadata
// array is positionally aligned with the vector rows: array index i is
// index row i.
func (s *FlatStore) persist(rows []Row, dim int) error {
	if dir := filepath.Dir(s.indexPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	f, err := os.Create(s.indexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	header := []uint32{flatMagic, uint32(dim), uint32(len(rows))}
	for _, v := range header {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write index header: %w", err)
		}
	}
	for _, row := range rows {
		if err := binary.Write(f, binary.LittleEndian, row.Vector); err != nil {
			return fmt.Errorf("failed to write index vectors: %w", err)
		}
	}

	metadata := make([]ChunkMetadata, len(rows))
	for i, row := range rows {
		metadata[i] = row.Meta
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataPath, metaBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

func (s *FlatStore) readVectors() ([][]float32, int, error) {
	f, err := os.Open(s.indexPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	var magic, dim, count uint32
	for _, p := range []*uint32{&magic, &dim, &count} {
		if err := binary.Read(f, binary.LittleEndian, p); err != nil {
			return nil, 0, fmt.Errorf("failed to read index header: %w", err)
		}
	}
	if magic != flatMagic {
		return nil, 0, fmt.Errorf("not an index file: bad magic %#x", magic)
	}
	if dim == 0 || count == 0 {
		return nil, 0, fmt.Errorf("corrupt index header: dim=%d count=%d", dim, count)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vec := make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, vec); err != nil {
			return nil, 0, fmt.Errorf("failed to read vector row %d: %w", i, err)
		}
		vectors[i] = vec
	}

	return vectors, int(dim), nil
}

var _ VectorStore = (*FlatStore)(nil)
