// Package store persists order rows. Persistence runs alongside the
// pipeline: an upsert on every status change plus a terminal update carrying
// the settlement result or the failure reason. Store errors are reported to
// the caller as *PersistenceError and must never abort order progress.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/solrouter/swapflow/internal/order"
)

// PersistenceError wraps a storage failure. Logged, never propagated into
// the pipeline's control flow.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// OrderRow is the persisted shape of an order.
type OrderRow struct {
	ID            string    `gorm:"primaryKey;type:uuid"`
	Side          string    `gorm:"type:varchar(4);not null"`
	TokenIn       string    `gorm:"column:token_in;not null"`
	TokenOut      string    `gorm:"column:token_out;not null"`
	Amount        string    `gorm:"type:numeric;not null"`
	Slippage      float64   `gorm:"not null"`
	Status        string    `gorm:"index;not null"`
	LastError     string    `gorm:"type:text"`
	SettlementRef string    `gorm:"column:settlement_ref"`
	ExecutedPrice string    `gorm:"column:executed_price;type:numeric"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (OrderRow) TableName() string { return "orders" }

// OrderStore is the persistence boundary used by the pipeline.
type OrderStore interface {
	UpsertStatus(ctx context.Context, ord *order.Order) error
	MarkConfirmed(ctx context.Context, id uuid.UUID, ref string, executedPrice string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Get(ctx context.Context, id uuid.UUID) (*OrderRow, error)
}

// GormStore implements OrderStore on gorm.
type GormStore struct {
	db *gorm.DB
}

// Open connects using the configured driver ("sqlite" or "postgres") and
// migrates the orders table.
func Open(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}
	if err := db.AutoMigrate(&OrderRow{}); err != nil {
		return nil, fmt.Errorf("migrating orders table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing gorm handle, migrating the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&OrderRow{}); err != nil {
		return nil, fmt.Errorf("migrating orders table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// UpsertStatus writes the order keyed by id, updating status on conflict.
// Idempotent: replaying the same transition is a no-op state-wise.
func (s *GormStore) UpsertStatus(ctx context.Context, ord *order.Order) error {
	row := OrderRow{
		ID:       ord.ID.String(),
		Side:     string(ord.Side),
		TokenIn:  ord.TokenIn,
		TokenOut: ord.TokenOut,
		Amount:   ord.Amount.String(),
		Slippage: ord.Slippage,
		Status:   string(ord.Status),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return &PersistenceError{Op: "upsert", Err: err}
	}
	return nil
}

// MarkConfirmed records the terminal success state with the settlement
// result.
func (s *GormStore) MarkConfirmed(ctx context.Context, id uuid.UUID, ref string, executedPrice string) error {
	err := s.db.WithContext(ctx).Model(&OrderRow{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":         string(order.StatusConfirmed),
			"settlement_ref": ref,
			"executed_price": executedPrice,
		}).Error
	if err != nil {
		return &PersistenceError{Op: "confirm", Err: err}
	}
	return nil
}

// MarkFailed records the terminal failure state with the error text.
func (s *GormStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	err := s.db.WithContext(ctx).Model(&OrderRow{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":     string(order.StatusFailed),
			"last_error": reason,
		}).Error
	if err != nil {
		return &PersistenceError{Op: "fail", Err: err}
	}
	return nil
}

// Get reads one persisted order.
func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*OrderRow, error) {
	var row OrderRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error; err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return &row, nil
}
