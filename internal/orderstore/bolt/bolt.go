// Package bolt persists orders in an embedded bbolt file, one JSON record per
// key in a single bucket.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/orderstore"
	"squareoff-engine/internal/types"
)

const bucketOrders = "orders"

var _ interfaces.OrderStore = (*Store)(nil)

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketOrders))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create orders bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert validates and stores a new order.
func (s *Store) Insert(_ context.Context, o types.Order) error {
	if err := orderstore.Validate(o); err != nil {
		return err
	}
	return s.Put(orderstore.FromOrder(o))
}

// Put writes a raw record without validation. Used for imports of legacy data.
func (s *Store) Put(r orderstore.Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", orderstore.ErrInvalidRecord)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", r.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOrders)).Put([]byte(r.ID), b)
	})
}

func (s *Store) Get(_ context.Context, id string) (types.Order, error) {
	var r orderstore.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketOrders)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("order %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return types.Order{}, err
	}
	return orderstore.Normalize(r)
}

func (s *Store) FindCandidates(ctx context.Context, filter types.Filter, limit int) ([]types.Order, error) {
	var records []orderstore.Record
	var undecodable []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketOrders))
		if filter.ID != "" {
			if v := b.Get([]byte(filter.ID)); v != nil {
				records = appendRecord(records, &undecodable, filter.ID, v)
			}
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records = appendRecord(records, &undecodable, string(k), v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}

	orders, bad := orderstore.Select(records, filter, limit)
	bad = append(bad, undecodable...)
	if len(bad) > 0 {
		logger.Warn(ctx, "Skipping unreadable order records", "ids", bad)
	}
	return orders, nil
}

func appendRecord(records []orderstore.Record, bad *[]string, key string, v []byte) []orderstore.Record {
	var r orderstore.Record
	if err := json.Unmarshal(v, &r); err != nil {
		*bad = append(*bad, key)
		return records
	}
	return append(records, r)
}

// UpdateOrder checks the status precondition and writes the update inside one
// bbolt read-write transaction.
func (s *Store) UpdateOrder(ctx context.Context, id string, update types.OrderUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketOrders))
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("order %s: %w", id, types.ErrNotFound)
		}
		var r orderstore.Record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		if err := orderstore.ApplyUpdate(&r, update); err != nil {
			return err
		}
		out, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode order %s: %w", id, err)
		}
		return b.Put([]byte(id), out)
	})
}
