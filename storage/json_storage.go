package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"voting-gateway/models"
)

// JSONStore keeps every voter in a single JSON document that is rewritten
// on each change through a temp file and rename.
type JSONStore struct {
	path   string
	mu     sync.RWMutex
	voters map[string]*models.VoterRecord
}

type votersFile struct {
	Voters []*models.VoterRecord `json:"voters"`
}

func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store := &JSONStore{
		path:   path,
		voters: make(map[string]*models.VoterRecord),
	}

	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONStore) FindByNationalID(_ context.Context, nationalID string) (*models.VoterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voter, exists := s.voters[nationalID]
	if !exists {
		return nil, models.ErrNotFound
	}
	rec := *voter
	return &rec, nil
}

func (s *JSONStore) Insert(_ context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.voters[record.NationalID]; exists {
		return nil, models.ErrConflict
	}

	rec := prepareInsert(record, time.Now().UTC())
	s.voters[rec.NationalID] = rec
	if err := s.save(); err != nil {
		delete(s.voters, rec.NationalID)
		return nil, err
	}

	out := *rec
	return &out, nil
}

func (s *JSONStore) Update(_ context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.voters[record.NationalID]
	if !exists {
		return nil, models.ErrNotFound
	}

	rec := applyUpdate(existing, record, time.Now().UTC())
	s.voters[rec.NationalID] = rec
	if err := s.save(); err != nil {
		s.voters[rec.NationalID] = existing
		return nil, err
	}

	out := *rec
	return &out, nil
}

func (s *JSONStore) Ping(context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read voters file: %w", err)
	}

	var file votersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal voters: %w", err)
	}

	for _, voter := range file.Voters {
		if voter.NationalID == "" {
			return fmt.Errorf("voters file contains a record without aadhaar_no")
		}
		s.voters[voter.NationalID] = voter
	}
	return nil
}

func (s *JSONStore) save() error {
	file := votersFile{Voters: make([]*models.VoterRecord, 0, len(s.voters))}
	for _, voter := range s.voters {
		file.Voters = append(file.Voters, voter)
	}
	sort.Slice(file.Voters, func(i, j int) bool {
		return file.Voters[i].NationalID < file.Voters[j].NationalID
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal voters: %w", err)
	}

	// Write to temporary file first
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write voters file: %w", err)
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save voters file: %w", err)
	}

	return nil
}
