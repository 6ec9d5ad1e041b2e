package models

import (
	"time"

	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/shopspring/decimal"
)

// PublishRow is one warehouse row joined with its snapshot header, as written to a spreadsheet
type PublishRow struct {
	Date                           time.Time       `gorm:"column:date" json:"date"`
	WarehouseName                  string          `gorm:"column:warehouse_name" json:"warehouse_name"`
	GeoName                        *string         `gorm:"column:geo_name" json:"geo_name"`
	BoxDeliveryBase                decimal.Decimal `gorm:"column:box_delivery_base" json:"box_delivery_base"`
	BoxDeliveryCoefExpr            decimal.Decimal `gorm:"column:box_delivery_coef_expr" json:"box_delivery_coef_expr"`
	BoxDeliveryLiter               decimal.Decimal `gorm:"column:box_delivery_liter" json:"box_delivery_liter"`
	BoxDeliveryMarketplaceBase     decimal.Decimal `gorm:"column:box_delivery_marketplace_base" json:"box_delivery_marketplace_base"`
	BoxDeliveryMarketplaceCoefExpr decimal.Decimal `gorm:"column:box_delivery_marketplace_coef_expr" json:"box_delivery_marketplace_coef_expr"`
	BoxDeliveryMarketplaceLiter    decimal.Decimal `gorm:"column:box_delivery_marketplace_liter" json:"box_delivery_marketplace_liter"`
	BoxStorageBase                 decimal.Decimal `gorm:"column:box_storage_base" json:"box_storage_base"`
	BoxStorageCoefExpr             decimal.Decimal `gorm:"column:box_storage_coef_expr" json:"box_storage_coef_expr"`
	BoxStorageLiter                decimal.Decimal `gorm:"column:box_storage_liter" json:"box_storage_liter"`
	DtNextBox                      *time.Time      `gorm:"column:dt_next_box" json:"dt_next_box"`
	DtTillMax                      *time.Time      `gorm:"column:dt_till_max" json:"dt_till_max"`
}

// PublishHeader lists the spreadsheet columns in the order Values renders them
var PublishHeader = []string{
	"date",
	"warehouse_name",
	"geo_name",
	"box_delivery_base",
	"box_delivery_coef_expr",
	"box_delivery_liter",
	"box_delivery_marketplace_base",
	"box_delivery_marketplace_coef_expr",
	"box_delivery_marketplace_liter",
	"box_storage_base",
	"box_storage_coef_expr",
	"box_storage_liter",
	"dt_next_box",
	"dt_till_max",
}

// Values renders the row as spreadsheet cells; absent dates become empty strings
func (r PublishRow) Values() []any {
	return []any{
		utils.FormatDate(r.Date),
		r.WarehouseName,
		utils.Deref(r.GeoName),
		r.BoxDeliveryBase.InexactFloat64(),
		r.BoxDeliveryCoefExpr.InexactFloat64(),
		r.BoxDeliveryLiter.InexactFloat64(),
		r.BoxDeliveryMarketplaceBase.InexactFloat64(),
		r.BoxDeliveryMarketplaceCoefExpr.InexactFloat64(),
		r.BoxDeliveryMarketplaceLiter.InexactFloat64(),
		r.BoxStorageBase.InexactFloat64(),
		r.BoxStorageCoefExpr.InexactFloat64(),
		r.BoxStorageLiter.InexactFloat64(),
		utils.FormatDatePtr(r.DtNextBox),
		utils.FormatDatePtr(r.DtTillMax),
	}
}

// SheetValues renders header plus rows as a full worksheet body
func SheetValues(rows []PublishRow) [][]any {
	values := make([][]any, 0, len(rows)+1)
	header := make([]any, len(PublishHeader))
	for i, h := range PublishHeader {
		header[i] = h
	}
	values = append(values, header)
	for _, r := range rows {
		values = append(values, r.Values())
	}
	return values
}

// Coefficient returns the value of the sort key for r
func (r PublishRow) Coefficient(sortBy SortBy) decimal.Decimal {
	switch sortBy {
	case SortByDelivery:
		return r.BoxDeliveryCoefExpr
	case SortByDeliveryMarketplace:
		return r.BoxDeliveryMarketplaceCoefExpr
	default:
		return r.BoxStorageCoefExpr
	}
}
