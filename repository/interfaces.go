// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// TariffRepository defines row-level access to snapshot headers and warehouse details.
// Dates passed in must already be calendar dates (UTC midnight).
type TariffRepository interface {
	HeaderByDate(ctx context.Context, date time.Time) (*models.Tariff, error)
	DetailByKey(ctx context.Context, date time.Time, warehouseName string) (*models.TariffDetail, error)

	// UpsertHeader inserts or fully overwrites the header; nil dates are written as NULL
	UpsertHeader(ctx context.Context, header *models.Tariff) (created bool, err error)
	// UpsertDetail inserts or fully overwrites the row keyed by (date, warehouse_name)
	UpsertDetail(ctx context.Context, detail *models.TariffDetail) (created bool, err error)

	CountDetails(ctx context.Context, date time.Time) (int64, error)
	SnapshotRows(ctx context.Context, date time.Time, sortBy models.SortBy) ([]models.PublishRow, error)
}
