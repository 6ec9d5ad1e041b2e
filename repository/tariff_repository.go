package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"gorm.io/gorm"
)

// TariffRepositoryImpl implements TariffRepository
type TariffRepositoryImpl struct {
	headers *BaseRepository[models.Tariff]
	details *BaseRepository[models.TariffDetail]
}

// NewTariffRepository creates a new tariff repository
func NewTariffRepository(db *gorm.DB) TariffRepository {
	return &TariffRepositoryImpl{
		headers: NewBaseRepository[models.Tariff](db),
		details: NewBaseRepository[models.TariffDetail](db),
	}
}

// HeaderByDate retrieves the snapshot header for a date, nil when absent
func (r *TariffRepositoryImpl) HeaderByDate(ctx context.Context, date time.Time) (*models.Tariff, error) {
	db := r.headers.getDB(ctx)

	var header models.Tariff
	err := db.Where("date = ?", date).Take(&header).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tariff header: %w", err)
	}

	return &header, nil
}

// DetailByKey retrieves one warehouse row, nil when absent
func (r *TariffRepositoryImpl) DetailByKey(ctx context.Context, date time.Time, warehouseName string) (*models.TariffDetail, error) {
	db := r.details.getDB(ctx)

	var detail models.TariffDetail
	err := db.Where("date = ? AND warehouse_name = ?", date, warehouseName).Take(&detail).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tariff detail %q: %w", warehouseName, err)
	}

	return &detail, nil
}

func (r *TariffRepositoryImpl) UpsertHeader(ctx context.Context, header *models.Tariff) (bool, error) {
	existing, err := r.HeaderByDate(ctx, header.Date)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, r.headers.Save(ctx, header)
	}

	db := r.headers.getDB(ctx)
	err = db.Model(&models.Tariff{}).
		Where("date = ?", header.Date).
		Updates(map[string]any{
			"dt_next_box": header.DtNextBox,
			"dt_till_max": header.DtTillMax,
		}).Error
	if err != nil {
		return false, fmt.Errorf("failed to update tariff header: %w", err)
	}

	return false, nil
}

func (r *TariffRepositoryImpl) UpsertDetail(ctx context.Context, detail *models.TariffDetail) (bool, error) {
	existing, err := r.DetailByKey(ctx, detail.Date, detail.WarehouseName)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, r.details.Save(ctx, detail)
	}

	db := r.details.getDB(ctx)
	err = db.Model(&models.TariffDetail{}).
		Where("date = ? AND warehouse_name = ?", detail.Date, detail.WarehouseName).
		Updates(map[string]any{
			"geo_name":                           detail.GeoName,
			"box_delivery_base":                  detail.BoxDeliveryBase,
			"box_delivery_coef_expr":             detail.BoxDeliveryCoefExpr,
			"box_delivery_liter":                 detail.BoxDeliveryLiter,
			"box_delivery_marketplace_base":      detail.BoxDeliveryMarketplaceBase,
			"box_delivery_marketplace_coef_expr": detail.BoxDeliveryMarketplaceCoefExpr,
			"box_delivery_marketplace_liter":     detail.BoxDeliveryMarketplaceLiter,
			"box_storage_base":                   detail.BoxStorageBase,
			"box_storage_coef_expr":              detail.BoxStorageCoefExpr,
			"box_storage_liter":                  detail.BoxStorageLiter,
		}).Error
	if err != nil {
		return false, fmt.Errorf("failed to update tariff detail %q: %w", detail.WarehouseName, err)
	}

	return false, nil
}

// CountDetails returns the number of warehouse rows stored for a date
func (r *TariffRepositoryImpl) CountDetails(ctx context.Context, date time.Time) (int64, error) {
	db := r.details.getDB(ctx)

	var count int64
	if err := db.Model(&models.TariffDetail{}).Where("date = ?", date).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tariff details: %w", err)
	}
	return count, nil
}

// SnapshotRows joins details with their header, ascending by the chosen coefficient.
// warehouse_name breaks ties so the order is stable between runs.
func (r *TariffRepositoryImpl) SnapshotRows(ctx context.Context, date time.Time, sortBy models.SortBy) ([]models.PublishRow, error) {
	column, ok := sortBy.Column()
	if !ok {
		return nil, fmt.Errorf("unknown sort key %q", sortBy)
	}

	db := r.details.getDB(ctx)

	rows := make([]models.PublishRow, 0)
	err := db.Table("tariffs_details AS d").
		Select(`d.date, d.warehouse_name, d.geo_name,
			d.box_delivery_base, d.box_delivery_coef_expr, d.box_delivery_liter,
			d.box_delivery_marketplace_base, d.box_delivery_marketplace_coef_expr, d.box_delivery_marketplace_liter,
			d.box_storage_base, d.box_storage_coef_expr, d.box_storage_liter,
			t.dt_next_box, t.dt_till_max`).
		Joins("JOIN tariffs AS t ON t.date = d.date").
		Where("d.date = ?", date).
		Order(fmt.Sprintf("d.%s ASC, d.warehouse_name ASC", column)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot rows: %w", err)
	}

	return rows, nil
}
