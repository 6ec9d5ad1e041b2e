// Package models contains domain entities for the tariff snapshot store
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tariff is the per-day snapshot header
// Table: tariffs
// One row per calendar date; nil dates mean the upstream did not provide a usable value
type Tariff struct {
	Date      time.Time  `gorm:"primaryKey;type:date;column:date" json:"date"`
	DtNextBox *time.Time `gorm:"type:date;column:dt_next_box" json:"dt_next_box"`
	DtTillMax *time.Time `gorm:"type:date;column:dt_till_max" json:"dt_till_max"`

	Details []TariffDetail `gorm:"foreignKey:Date;references:Date;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"details,omitempty"`
}

func (Tariff) TableName() string {
	return "tariffs"
}

// TariffDetail holds the box tariffs of one warehouse for one date
// Table: tariffs_details
// Primary key (date, warehouse_name); date references tariffs.date with cascade
type TariffDetail struct {
	Date          time.Time `gorm:"primaryKey;type:date;column:date" json:"date"`
	WarehouseName string    `gorm:"primaryKey;size:255;column:warehouse_name" json:"warehouse_name"`
	GeoName       *string   `gorm:"size:255;column:geo_name" json:"geo_name"`

	BoxDeliveryBase                decimal.Decimal `gorm:"type:numeric(10,2);column:box_delivery_base" json:"box_delivery_base"`
	BoxDeliveryCoefExpr            decimal.Decimal `gorm:"type:numeric(10,2);column:box_delivery_coef_expr" json:"box_delivery_coef_expr"`
	BoxDeliveryLiter               decimal.Decimal `gorm:"type:numeric(10,2);column:box_delivery_liter" json:"box_delivery_liter"`
	BoxDeliveryMarketplaceBase     decimal.Decimal `gorm:"type:numeric(10,2);column:box_delivery_marketplace_base" json:"box_delivery_marketplace_base"`
	BoxDeliveryMarketplaceCoefExpr decimal.Decimal `gorm:"type:numeric(10,2);column:box_delivery_marketplace_coef_expr" json:"box_delivery_marketplace_coef_expr"`
	BoxDeliveryMarketplaceLiter    decimal.Decimal `gorm:"type:numeric(10,2);column:box_delivery_marketplace_liter" json:"box_delivery_marketplace_liter"`
	BoxStorageBase                 decimal.Decimal `gorm:"type:numeric(10,2);column:box_storage_base" json:"box_storage_base"`
	BoxStorageCoefExpr             decimal.Decimal `gorm:"type:numeric(10,2);column:box_storage_coef_expr" json:"box_storage_coef_expr"`
	BoxStorageLiter                decimal.Decimal `gorm:"type:numeric(10,2);column:box_storage_liter" json:"box_storage_liter"`
}

func (TariffDetail) TableName() string {
	return "tariffs_details"
}

// SortBy selects the coefficient a published snapshot is ordered by
type SortBy string

const (
	SortByStorage             SortBy = "storage"
	SortByDelivery            SortBy = "delivery"
	SortByDeliveryMarketplace SortBy = "delivery_marketplace"
)

// Column returns the tariffs_details column backing the sort key
func (s SortBy) Column() (string, bool) {
	switch s {
	case SortByStorage:
		return "box_storage_coef_expr", true
	case SortByDelivery:
		return "box_delivery_coef_expr", true
	case SortByDeliveryMarketplace:
		return "box_delivery_marketplace_coef_expr", true
	default:
		return "", false
	}
}

// Valid reports whether s names a known coefficient
func (s SortBy) Valid() bool {
	_, ok := s.Column()
	return ok
}
