package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// JSONStore implements the Store interface using a simple JSON file.
// All records are kept in memory and persisted to disk on each write.
// Suitable for small deployments and testing.
type JSONStore struct {
	path string
	recs map[string]*Record // indexed by job_id
	mu   sync.RWMutex
}

// jsonPersistence is the on-disk format for the JSON store.
type jsonPersistence struct {
	Jobs []*Record `json:"jobs"`
}

// NewJSONStore creates a new JSON file-backed store at the given path.
func NewJSONStore(path string) (Store, error) {
	s := &JSONStore{
		path: path,
		recs: make(map[string]*Record),
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return s, nil
}

// load reads the JSON file and populates the in-memory map.
func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var persist jsonPersistence
	if err := json.Unmarshal(data, &persist); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	s.recs = make(map[string]*Record, len(persist.Jobs))
	for _, rec := range persist.Jobs {
		s.recs[rec.JobID] = rec
	}

	return nil
}

// save writes the in-memory map to the JSON file via a temp-file rename.
func (s *JSONStore) save() error {
	recs := make([]*Record, 0, len(s.recs))
	for _, rec := range s.recs {
		recs = append(recs, rec)
	}

	data, err := json.MarshalIndent(jsonPersistence{Jobs: recs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Save persists a finished job record.
func (s *JSONStore) Save(rec *Record) error {
	if rec.JobID == "" {
		return fmt.Errorf("job_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs[rec.JobID] = rec
	return s.save()
}

// Get retrieves a record by job ID.
func (s *JSONStore) Get(jobID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[jobID]
	if !ok {
		return nil, fmt.Errorf("record not found: %s", jobID)
	}
	return rec, nil
}

// List retrieves the most recent records, newest first.
func (s *JSONStore) List(limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*Record, 0, len(s.recs))
	for _, rec := range s.recs {
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartTime.After(recs[j].StartTime)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Close is a no-op for the JSON store.
func (s *JSONStore) Close() error {
	return nil
}
