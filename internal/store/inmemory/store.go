package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/store"
)

// Store is an in-memory implementation of store.PaymentStore.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu       sync.RWMutex
	payments map[string]*domain.PaymentRecord
}

// NewStore creates a new in-memory payment store.
func NewStore() *Store {
	return &Store{
		payments: make(map[string]*domain.PaymentRecord),
	}
}

// Create implements the PaymentStore interface.
func (s *Store) Create(ctx context.Context, rec *domain.PaymentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("payment ID is required")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[rec.ID]; exists {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, rec.ID)
	}
	rec.Version = 1
	s.payments[rec.ID] = rec.Clone()
	return nil
}

// Get implements the PaymentStore interface.
func (s *Store) Get(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.payments[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Update implements the PaymentStore interface.
func (s *Store) Update(ctx context.Context, rec *domain.PaymentRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.payments[rec.ID]
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrNotFound, rec.ID)
	}
	if current.Version != rec.Version {
		return fmt.Errorf("%w: %s at version %d, have %d", store.ErrVersionConflict, rec.ID, current.Version, rec.Version)
	}
	rec.Version++
	s.payments[rec.ID] = rec.Clone()
	return nil
}

// List implements the PaymentStore interface.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]*domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PaymentRecord
	for _, rec := range s.payments {
		if !filter.Matches(rec) {
			continue
		}
		c := rec.Clone()
		if filter.OmitVoucherData && c.Attachment != nil {
			c.Attachment.EncodedImage = ""
			c.Attachment.Thumbnail = ""
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return result[i].ID < result[j].ID
	})

	// Apply limit and offset
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.PaymentRecord{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Ensure Store implements PaymentStore interface.
var _ store.PaymentStore = (*Store)(nil)
