package models

// TariffPayload is the upstream tariff response mapped out of its transport envelope.
// Values are kept as the upstream sent them; absent dates are empty strings.
type TariffPayload struct {
	DtNextBox  string
	DtTillMax  string
	Warehouses []WarehouseTariffInput
}

// WarehouseTariffInput is one upstream warehouse entry with locale-formatted numbers ("12,5")
type WarehouseTariffInput struct {
	WarehouseName string `validate:"required"`
	GeoName       string

	BoxDeliveryBase                string
	BoxDeliveryCoefExpr            string
	BoxDeliveryLiter               string
	BoxDeliveryMarketplaceBase     string
	BoxDeliveryMarketplaceCoefExpr string
	BoxDeliveryMarketplaceLiter    string
	BoxStorageBase                 string
	BoxStorageCoefExpr             string
	BoxStorageLiter                string
}
