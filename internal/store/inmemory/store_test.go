package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/store"
	"github.com/dvloznov/academy-payments/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.PaymentStore { return NewStore() })
}

func TestStore_RejectsInvalidRecord(t *testing.T) {
	s := NewStore()
	rec := storetest.Record(t, "p1", "s1", 1)
	// approved without a submission can never be produced by the lifecycle
	rec.Status, _ = domain.ParseStatus("paid", "approved")

	if err := s.Create(context.Background(), rec); !errors.Is(err, domain.ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
}
