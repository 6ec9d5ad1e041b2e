package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/repository"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// UpsertResult summarizes one snapshot write
type UpsertResult struct {
	SnapshotWritten bool  `json:"snapshot_written"`
	Created         int   `json:"created"`
	Updated         int   `json:"updated"`
	Total           int   `json:"total"`
	Skipped         int   `json:"skipped"`
	// Stored counts the warehouse rows held for the date after the commit
	Stored          int64 `json:"stored"`
}

// TariffSnapshotFlow stores daily tariff snapshots and reads them back for publishing
type TariffSnapshotFlow interface {
	UpsertSnapshot(ctx context.Context, payload *models.TariffPayload, date time.Time) (*UpsertResult, error)
	ReadSnapshotForPublish(ctx context.Context, date time.Time, sortBy models.SortBy) ([]models.PublishRow, error)
}

// TariffSnapshotFlowImpl implements TariffSnapshotFlow
type TariffSnapshotFlowImpl struct {
	tariffRepo repository.TariffRepository
	db         *gorm.DB
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewTariffSnapshotFlow creates a new tariff snapshot flow
func NewTariffSnapshotFlow(
	tariffRepo repository.TariffRepository,
	db *gorm.DB,
	logger zerolog.Logger,
) TariffSnapshotFlow {
	return &TariffSnapshotFlowImpl{
		tariffRepo: tariffRepo,
		db:         db,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "snapshot_store").Logger(),
	}
}

func (f *TariffSnapshotFlowImpl) UpsertSnapshot(ctx context.Context, payload *models.TariffPayload, date time.Time) (*UpsertResult, error) {
	if payload == nil {
		return nil, NewStoreError(CodeInvalidPayload, "nothing to store", ErrPayloadRequired)
	}

	day := utils.DateOnly(date)
	header := &models.Tariff{
		Date:      day,
		DtNextBox: f.normalizeDate("dt_next_box", payload.DtNextBox),
		DtTillMax: f.normalizeDate("dt_till_max", payload.DtTillMax),
	}

	result := &UpsertResult{Total: len(payload.Warehouses)}
	details := make([]*models.TariffDetail, 0, len(payload.Warehouses))
	for i := range payload.Warehouses {
		in := payload.Warehouses[i]
		in.WarehouseName = strings.TrimSpace(in.WarehouseName)
		if err := f.validate.Struct(in); err != nil {
			f.logger.Error().Int("index", i).Err(err).Msg("Skipping warehouse entry without a name")
			result.Skipped++
			continue
		}
		details = append(details, toDetail(day, in))
	}

	var created, updated int
	var stored int64
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.tariffRepo.UpsertHeader(txCtx, header); err != nil {
			return err
		}
		for _, detail := range details {
			isNew, err := f.tariffRepo.UpsertDetail(txCtx, detail)
			if err != nil {
				return err
			}
			if isNew {
				created++
			} else {
				updated++
			}
		}
		n, err := f.tariffRepo.CountDetails(txCtx, day)
		if err != nil {
			return err
		}
		stored = n
		return nil
	})
	if err != nil {
		f.logger.Error().Err(err).Str("date", utils.FormatDate(day)).Msg("Snapshot upsert rolled back")
		return nil, NewStoreError(CodeStoreFailed, "failed to upsert tariff snapshot", err)
	}

	result.SnapshotWritten = true
	result.Created = created
	result.Updated = updated
	result.Stored = stored

	f.logger.Info().
		Str("date", utils.FormatDate(day)).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int64("stored", result.Stored).
		Msg("Snapshot stored")

	return result, nil
}

func (f *TariffSnapshotFlowImpl) ReadSnapshotForPublish(ctx context.Context, date time.Time, sortBy models.SortBy) ([]models.PublishRow, error) {
	if !sortBy.Valid() {
		return nil, NewStoreError(CodeInvalidSort, "unknown sort key "+string(sortBy), ErrInvalidSortKey)
	}

	rows, err := f.tariffRepo.SnapshotRows(ctx, utils.DateOnly(date), sortBy)
	if err != nil {
		return nil, NewStoreError(CodeStoreFailed, "failed to read tariff snapshot", err)
	}
	if len(rows) == 0 {
		return []models.PublishRow{}, nil
	}

	f.logger.Debug().
		Str("date", utils.FormatDate(utils.DateOnly(date))).
		Str("sort_by", string(sortBy)).
		Int("rows", len(rows)).
		Str("min", rows[0].Coefficient(sortBy).String()).
		Str("max", rows[len(rows)-1].Coefficient(sortBy).String()).
		Msg("Snapshot read for publish")
	return rows, nil
}

func (f *TariffSnapshotFlowImpl) normalizeDate(field, value string) *time.Time {
	t, err := NormalizeDate(field, value)
	if err != nil {
		f.logger.Warn().Err(err).Str("field", field).Msg("Date coerced to null")
	}
	return t
}

func toDetail(day time.Time, in models.WarehouseTariffInput) *models.TariffDetail {
	var geo *string
	if g := strings.TrimSpace(in.GeoName); g != "" {
		geo = &g
	}
	return &models.TariffDetail{
		Date:                           day,
		WarehouseName:                  in.WarehouseName,
		GeoName:                        geo,
		BoxDeliveryBase:                ParseDecimal(in.BoxDeliveryBase),
		BoxDeliveryCoefExpr:            ParseDecimal(in.BoxDeliveryCoefExpr),
		BoxDeliveryLiter:               ParseDecimal(in.BoxDeliveryLiter),
		BoxDeliveryMarketplaceBase:     ParseDecimal(in.BoxDeliveryMarketplaceBase),
		BoxDeliveryMarketplaceCoefExpr: ParseDecimal(in.BoxDeliveryMarketplaceCoefExpr),
		BoxDeliveryMarketplaceLiter:    ParseDecimal(in.BoxDeliveryMarketplaceLiter),
		BoxStorageBase:                 ParseDecimal(in.BoxStorageBase),
		BoxStorageCoefExpr:             ParseDecimal(in.BoxStorageCoefExpr),
		BoxStorageLiter:                ParseDecimal(in.BoxStorageLiter),
	}
}
