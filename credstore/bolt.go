package credstore

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore keeps credentials in a bbolt database, one bucket per profile.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBoltStore opens (or creates) the database at path and the bucket for
// profile. The Timeout lets bolt wait while another process holds the file.
func OpenBoltStore(path, profile string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	bucket := []byte(profile)
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
			return fmt.Errorf("failed to create bucket %s: %w", profile, createErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

func (b *BoltStore) Get(_ context.Context, kind Kind) (string, bool, error) {
	if err := validKind(kind); err != nil {
		return "", false, err
	}

	var token string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(b.bucket)
		if bkt == nil {
			return nil
		}
		// copy: the slice is only valid inside the transaction
		token = string(bkt.Get([]byte(kind)))
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("bolt get %s: %w", kind, err)
	}
	return token, token != "", nil
}

func (b *BoltStore) Set(_ context.Context, kind Kind, token string) error {
	if err := validKind(kind); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}
		if token == "" {
			return bkt.Delete([]byte(kind))
		}
		return bkt.Put([]byte(kind), []byte(token))
	})
	if err != nil {
		return fmt.Errorf("bolt set %s: %w", kind, err)
	}
	return nil
}

func (b *BoltStore) Clear(_ context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(b.bucket)
		if bkt == nil {
			return nil
		}
		for _, kind := range Kinds {
			if err := bkt.Delete([]byte(kind)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt clear: %w", err)
	}
	return nil
}

// Close releases the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
