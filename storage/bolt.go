package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"voting-gateway/models"
)

var votersBucket = []byte("voters")

// BoltStore keeps voters in an embedded bbolt file, one JSON value per
// national id.
type BoltStore struct {
	bolt *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = db.Update(func(txn *bbolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(votersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{bolt: db}, nil
}

func (s *BoltStore) FindByNationalID(_ context.Context, nationalID string) (*models.VoterRecord, error) {
	var rec *models.VoterRecord

	err := s.bolt.View(func(txn *bbolt.Tx) error {
		var err error
		rec, err = getVoter(txn.Bucket(votersBucket), nationalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) Insert(_ context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	var rec *models.VoterRecord

	err := s.bolt.Update(func(txn *bbolt.Tx) error {
		bucket := txn.Bucket(votersBucket)
		if bucket.Get([]byte(record.NationalID)) != nil {
			return models.ErrConflict
		}
		rec = prepareInsert(record, time.Now().UTC())
		return putVoter(bucket, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) Update(_ context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	var rec *models.VoterRecord

	err := s.bolt.Update(func(txn *bbolt.Tx) error {
		bucket := txn.Bucket(votersBucket)
		existing, err := getVoter(bucket, record.NationalID)
		if err != nil {
			return err
		}
		rec = applyUpdate(existing, record, time.Now().UTC())
		return putVoter(bucket, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) Ping(context.Context) error {
	return s.bolt.View(func(txn *bbolt.Tx) error {
		if txn.Bucket(votersBucket) == nil {
			return fmt.Errorf("bucket '%s' not found", votersBucket)
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.bolt.Close()
}

func getVoter(bucket *bbolt.Bucket, nationalID string) (*models.VoterRecord, error) {
	data := bucket.Get([]byte(nationalID))
	if data == nil {
		return nil, models.ErrNotFound
	}

	var rec models.VoterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal voter: %w", err)
	}
	return &rec, nil
}

func putVoter(bucket *bbolt.Bucket, rec *models.VoterRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal voter: %w", err)
	}
	return bucket.Put([]byte(rec.NationalID), data)
}
