package gormstore

import (
	"testing"
	"time"

	"github.com/dvloznov/academy-payments/internal/store/storetest"
)

func TestRowRoundTrip_DueDateInDriverZone(t *testing.T) {
	zones := []*time.Location{
		time.FixedZone("UTC-5", -5*3600),
		time.FixedZone("UTC-10", -10*3600),
		time.FixedZone("UTC+9", 9*3600),
	}

	for _, zone := range zones {
		t.Run(zone.String(), func(t *testing.T) {
			rec := storetest.Record(t, "p1", "s1", 4)
			want := rec.DueDate

			for round := 0; round < 3; round++ {
				row := toRow(rec)
				// The postgres driver returns timestamptz in the local zone.
				row.DueDate = row.DueDate.In(zone)

				got, err := fromRow(row, nil)
				if err != nil {
					t.Fatalf("fromRow: %v", err)
				}
				if !got.DueDate.Equal(want) {
					t.Fatalf("Round %d: expected due %s, got %s", round, want.Format(time.DateOnly), got.DueDate.Format(time.DateOnly))
				}
				if got.DueDate.Location() != time.UTC {
					t.Errorf("Round %d: expected UTC due date, got %s", round, got.DueDate.Location())
				}
				rec = got
			}
		})
	}
}
