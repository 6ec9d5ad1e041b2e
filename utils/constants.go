package utils

import (
	"time"
)

// Date formats
const (
	// DateLayout is the calendar date layout used by the tariff API, the database keys and the sheets
	DateLayout = "2006-01-02"
)

// Upstream defaults
const (
	DefaultTariffAPIURL     = "https://common-api.wildberries.ru/api/v1/tariffs/box"
	DefaultTariffAPITimeout = 30 * time.Second
	DefaultUserAgent        = "WB-Tariffs-Sync/1.0"
)

// Spreadsheet defaults
const (
	DefaultWorksheetName = "stocks_coefs"
	DefaultSheetRows     = 1000
	DefaultSheetColumns  = 20
)

// Scheduler defaults
const (
	// DefaultSchedulerCron fires at second zero of every minute
	DefaultSchedulerCron = "0 * * * * *"
	DefaultTickTimeout   = 10 * time.Minute
)
