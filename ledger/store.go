package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const blockBucket = "blocks"

// Store persists blocks in a BoltDB file, keyed by big-endian index so that
// a cursor walks them in chain order.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (or creates) the BoltDB file at path.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put persists a block. Blocks are immutable: writing a different block at
// an index already taken fails.
func (s *Store) Put(ctx context.Context, block Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("ledger storage is not configured")
	}
	if block.Index < 0 {
		return fmt.Errorf("invalid block index %d", block.Index)
	}

	payload, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(blockBucket))
		if bucket == nil {
			return errors.New("block bucket is missing")
		}
		key := blockKey(block.Index)
		if existing := bucket.Get(key); existing != nil {
			var stored Block
			if err := json.Unmarshal(existing, &stored); err != nil {
				return fmt.Errorf("unmarshal block %d: %w", block.Index, err)
			}
			if stored.Hash != block.Hash {
				return fmt.Errorf("block %d already stored with hash %s", block.Index, stored.Hash)
			}
			return nil
		}
		return bucket.Put(key, payload)
	})
}

// Get fetches the block at index.
func (s *Store) Get(ctx context.Context, index int) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	if s == nil || s.db == nil {
		return Block{}, errors.New("ledger storage is not configured")
	}
	if index < 0 {
		return Block{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}

	var block Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(blockBucket))
		if bucket == nil {
			return errors.New("block bucket is missing")
		}
		payload := bucket.Get(blockKey(index))
		if payload == nil {
			return fmt.Errorf("index %d: %w", index, ErrNotFound)
		}
		if err := json.Unmarshal(payload, &block); err != nil {
			return fmt.Errorf("unmarshal block %d: %w", index, err)
		}
		return nil
	})
	return block, err
}

// Blocks returns every stored block in index order.
func (s *Store) Blocks(ctx context.Context) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("ledger storage is not configured")
	}

	var blocks []Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(blockBucket))
		if bucket == nil {
			return errors.New("block bucket is missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var block Block
			if err := json.Unmarshal(v, &block); err != nil {
				return fmt.Errorf("unmarshal block %d: %w", binary.BigEndian.Uint64(k), err)
			}
			blocks = append(blocks, block)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(blockBucket)); err != nil {
			return fmt.Errorf("create block bucket: %w", err)
		}
		return nil
	})
}

func blockKey(index int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}
