package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateSnapshot stores a header and one detail row per warehouse name.
// Coefficients increase with the warehouse index.
func (tf *TestFixtures) CreateSnapshot(date time.Time, warehouses ...string) (*models.Tariff, error) {
	header := &models.Tariff{Date: utils.DateOnly(date)}
	if err := tf.DB.DB.Create(header).Error; err != nil {
		return nil, fmt.Errorf("failed to create tariff header: %w", err)
	}

	for i, name := range warehouses {
		coef := decimal.NewFromInt(int64(i + 1))
		detail := &models.TariffDetail{
			Date:                           header.Date,
			WarehouseName:                  name,
			GeoName:                        utils.ToPtr("Test region"),
			BoxDeliveryCoefExpr:            coef,
			BoxDeliveryMarketplaceCoefExpr: coef,
			BoxStorageCoefExpr:             coef,
		}
		if err := tf.DB.DB.Create(detail).Error; err != nil {
			return nil, fmt.Errorf("failed to create tariff detail %s: %w", name, err)
		}
	}

	return header, nil
}

// SamplePayload returns an upstream payload in the shape the fetch client produces
func SamplePayload() *models.TariffPayload {
	return &models.TariffPayload{
		DtNextBox: "2024-06-01",
		DtTillMax: "",
		Warehouses: []models.WarehouseTariffInput{
			{
				WarehouseName:       "Koledino",
				GeoName:             "Central",
				BoxDeliveryBase:     "48",
				BoxDeliveryCoefExpr: "160",
				BoxDeliveryLiter:    "11,2",
				BoxStorageBase:      "0,1",
				BoxStorageCoefExpr:  "1,5",
				BoxStorageLiter:     "0,1",
			},
			{
				WarehouseName:       "Tula",
				GeoName:             "Central",
				BoxDeliveryBase:     "46",
				BoxDeliveryCoefExpr: "155",
				BoxDeliveryLiter:    "11",
				BoxStorageBase:      "0,08",
				BoxStorageCoefExpr:  "0,8",
				BoxStorageLiter:     "0,08",
			},
		},
	}
}
