package stixcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

const abilityBucket = "abilities"

// BoltStore keeps abilities in a single Bolt bucket keyed by ability_id,
// JSON-encoded. It implements AbilityStore.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path and ensures the
// ability bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(abilityBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ability bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Put stores or replaces one ability.
func (s *BoltStore) Put(ab Ability) error {
	if ab.AbilityID == "" {
		return fmt.Errorf("ability has no ability_id")
	}
	data, err := json.Marshal(ab)
	if err != nil {
		return fmt.Errorf("failed to marshal ability %s: %w", ab.AbilityID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(abilityBucket)).Put([]byte(ab.AbilityID), data)
	})
}

// PutAll stores a batch of abilities in one transaction.
func (s *BoltStore) PutAll(abilities []Ability) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(abilityBucket))
		for _, ab := range abilities {
			if ab.AbilityID == "" {
				continue
			}
			data, err := json.Marshal(ab)
			if err != nil {
				return fmt.Errorf("failed to marshal ability %s: %w", ab.AbilityID, err)
			}
			if err := bucket.Put([]byte(ab.AbilityID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Locate returns the full ability snapshot. Undecodable records are
// skipped rather than failing the whole read.
func (s *BoltStore) Locate(ctx context.Context) ([]Ability, error) {
	var abilities []Ability
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(abilityBucket)).ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ab Ability
			if err := json.Unmarshal(v, &ab); err != nil {
				return nil
			}
			abilities = append(abilities, ab)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read abilities: %w", err)
	}
	return abilities, nil
}

// Close releases the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
