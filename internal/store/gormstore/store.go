// Package gormstore persists payment records in a SQL database through gorm.
// sqlite, postgres and mysql are supported.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/store"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database. For mysql the DSN must carry parseTime=true.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("Open: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Error),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("Open: %s: %w", driver, err)
	}
	return db, nil
}

// AutoMigrate creates or updates the payment tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&paymentRow{}, &rejectionRow{})
}

// Store implements store.PaymentStore on gorm.
type Store struct {
	db *gorm.DB
}

// New returns a Store over an open, migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create implements the PaymentStore interface.
func (s *Store) Create(ctx context.Context, rec *domain.PaymentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("payment ID is required")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	row := toRow(rec)
	row.Version = 1
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&paymentRow{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrAlreadyExists
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return appendRejections(tx, rec, 0)
	})
	if errors.Is(err, store.ErrAlreadyExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("Create: insert payment %s: %w", rec.ID, err)
	}
	rec.Version = 1
	return nil
}

// Get implements the PaymentStore interface.
func (s *Store) Get(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	db := s.db.WithContext(ctx)

	var row paymentRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("Get: payment %s: %w", id, err)
	}
	var rejections []rejectionRow
	if err := db.Where("payment_id = ?", id).Order("seq ASC").Find(&rejections).Error; err != nil {
		return nil, fmt.Errorf("Get: rejections of %s: %w", id, err)
	}
	return fromRow(row, rejections)
}

// Update implements the PaymentStore interface. The version check and the
// write happen in a single conditional UPDATE.
func (s *Store) Update(ctx context.Context, rec *domain.PaymentRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	row := toRow(rec)
	row.Version = rec.Version + 1
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&paymentRow{}).
			Where("id = ? AND version = ?", rec.ID, rec.Version).
			Select("*").
			Updates(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&paymentRow{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return store.ErrNotFound
			}
			return store.ErrVersionConflict
		}

		var stored int64
		if err := tx.Model(&rejectionRow{}).Where("payment_id = ?", rec.ID).Count(&stored).Error; err != nil {
			return err
		}
		return appendRejections(tx, rec, int(stored))
	})
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVersionConflict):
		return fmt.Errorf("%w: %s at version %d", err, rec.ID, rec.Version)
	case err != nil:
		return fmt.Errorf("Update: payment %s: %w", rec.ID, err)
	}
	rec.Version = row.Version
	return nil
}

// appendRejections inserts history entries from index from onward. History
// is append-only, so stored rows are never rewritten.
func appendRejections(tx *gorm.DB, rec *domain.PaymentRecord, from int) error {
	if from >= len(rec.RejectionHistory) {
		return nil
	}
	rows := make([]rejectionRow, 0, len(rec.RejectionHistory)-from)
	for i := from; i < len(rec.RejectionHistory); i++ {
		rows = append(rows, toRejectionRow(rec.ID, i, rec.RejectionHistory[i]))
	}
	return tx.Create(&rows).Error
}

// List implements the PaymentStore interface.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]*domain.PaymentRecord, error) {
	db := s.db.WithContext(ctx)

	q := db.Model(&paymentRow{})
	if filter.PayerSubjectID != "" {
		q = q.Where("payer_subject_id = ?", filter.PayerSubjectID)
	}
	if len(filter.Approvals) > 0 {
		approvals := make([]string, len(filter.Approvals))
		for i, a := range filter.Approvals {
			approvals[i] = a.String()
		}
		q = q.Where("approval IN ?", approvals)
	}
	if filter.OmitVoucherData {
		q = q.Omit("attachment_image", "attachment_thumbnail")
	}
	q = q.Order("due_date ASC").Order("id ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []paymentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	if len(rows) == 0 {
		return []*domain.PaymentRecord{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var rejections []rejectionRow
	if err := db.Where("payment_id IN ?", ids).Order("seq ASC").Find(&rejections).Error; err != nil {
		return nil, fmt.Errorf("List: rejections: %w", err)
	}
	byPayment := make(map[string][]rejectionRow)
	for _, r := range rejections {
		byPayment[r.PaymentID] = append(byPayment[r.PaymentID], r)
	}

	result := make([]*domain.PaymentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row, byPayment[row.ID])
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// Ensure Store implements PaymentStore interface.
var _ store.PaymentStore = (*Store)(nil)
