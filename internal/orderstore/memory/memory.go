// Package memory is an in-process order store for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/orderstore"
	"squareoff-engine/internal/types"
)

var _ interfaces.OrderStore = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	records map[string]orderstore.Record
	updates int
}

func New() *Store {
	return &Store{records: make(map[string]orderstore.Record)}
}

// Insert validates and stores a new order, replacing any order with the same id.
func (s *Store) Insert(_ context.Context, o types.Order) error {
	if err := orderstore.Validate(o); err != nil {
		return err
	}
	return s.Put(orderstore.FromOrder(o))
}

// Put stores a raw record as-is, including legacy shapes Insert would refuse.
func (s *Store) Put(r orderstore.Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", orderstore.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

func (s *Store) Get(_ context.Context, id string) (types.Order, error) {
	s.mu.Lock()
	r, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return types.Order{}, fmt.Errorf("order %s: %w", id, types.ErrNotFound)
	}
	return orderstore.Normalize(r)
}

// Updates counts successful UpdateOrder calls.
func (s *Store) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *Store) FindCandidates(ctx context.Context, filter types.Filter, limit int) ([]types.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	records := make([]orderstore.Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.Unlock()

	orders, bad := orderstore.Select(records, filter, limit)
	if len(bad) > 0 {
		logger.Warn(ctx, "Skipping unreadable order records", "ids", bad)
	}
	return orders, nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, update types.OrderUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, types.ErrNotFound)
	}
	if err := orderstore.ApplyUpdate(&r, update); err != nil {
		return err
	}
	s.records[id] = r
	s.updates++
	return nil
}
