package businessflow

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/repository"
	testingutil "github.com/amirphl/wb-tariffs-sync/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var snapshotDay = time.Date(2024, 5, 30, 15, 4, 5, 0, time.UTC)

func newSnapshotFlow(t *testing.T) (TariffSnapshotFlow, repository.TariffRepository, *testingutil.TestDB) {
	t.Helper()
	return newSnapshotFlowWithLogger(t, zerolog.Nop())
}

func newSnapshotFlowWithLogger(t *testing.T, logger zerolog.Logger) (TariffSnapshotFlow, repository.TariffRepository, *testingutil.TestDB) {
	t.Helper()
	tdb, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tdb.TeardownTestDB() })

	repo := repository.NewTariffRepository(tdb.DB)
	return NewTariffSnapshotFlow(repo, tdb.DB, logger), repo, tdb
}

func TestUpsertSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("stores header and details", func(t *testing.T) {
		flow, repo, _ := newSnapshotFlow(t)

		result, err := flow.UpsertSnapshot(ctx, testingutil.SamplePayload(), snapshotDay)
		require.NoError(t, err)
		assert.True(t, result.SnapshotWritten)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 2, result.Created)
		assert.Equal(t, 0, result.Updated)
		assert.Equal(t, 0, result.Skipped)
		assert.Equal(t, int64(2), result.Stored)

		header, err := repo.HeaderByDate(ctx, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NotNil(t, header)
		require.NotNil(t, header.DtNextBox)
		assert.Equal(t, "2024-06-01", header.DtNextBox.Format("2006-01-02"))
		assert.Nil(t, header.DtTillMax)

		detail, err := repo.DetailByKey(ctx, header.Date, "Koledino")
		require.NoError(t, err)
		require.NotNil(t, detail)
		assert.True(t, decimal.RequireFromString("11.2").Equal(detail.BoxDeliveryLiter))
		assert.True(t, decimal.RequireFromString("1.5").Equal(detail.BoxStorageCoefExpr))
		assert.True(t, detail.BoxDeliveryMarketplaceBase.IsZero())
		require.NotNil(t, detail.GeoName)
		assert.Equal(t, "Central", *detail.GeoName)
	})

	t.Run("second run updates in place", func(t *testing.T) {
		flow, repo, _ := newSnapshotFlow(t)

		_, err := flow.UpsertSnapshot(ctx, testingutil.SamplePayload(), snapshotDay)
		require.NoError(t, err)

		payload := testingutil.SamplePayload()
		payload.Warehouses[0].BoxStorageCoefExpr = "2,25"
		result, err := flow.UpsertSnapshot(ctx, payload, snapshotDay)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Created)
		assert.Equal(t, 2, result.Updated)

		count, err := repo.CountDetails(ctx, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		detail, err := repo.DetailByKey(ctx, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), "Koledino")
		require.NoError(t, err)
		require.NotNil(t, detail)
		assert.True(t, decimal.RequireFromString("2.25").Equal(detail.BoxStorageCoefExpr))
	})

	t.Run("identical input twice leaves rows unchanged", func(t *testing.T) {
		flow, repo, _ := newSnapshotFlow(t)
		day := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)

		_, err := flow.UpsertSnapshot(ctx, testingutil.SamplePayload(), snapshotDay)
		require.NoError(t, err)
		firstHeader, err := repo.HeaderByDate(ctx, day)
		require.NoError(t, err)
		require.NotNil(t, firstHeader)
		firstDetail, err := repo.DetailByKey(ctx, day, "Koledino")
		require.NoError(t, err)
		require.NotNil(t, firstDetail)

		result, err := flow.UpsertSnapshot(ctx, testingutil.SamplePayload(), snapshotDay)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Created)
		assert.Equal(t, 2, result.Updated)
		assert.Equal(t, int64(2), result.Stored)

		secondHeader, err := repo.HeaderByDate(ctx, day)
		require.NoError(t, err)
		require.NotNil(t, secondHeader)
		require.NotNil(t, secondHeader.DtNextBox)
		assert.True(t, firstHeader.DtNextBox.Equal(*secondHeader.DtNextBox))
		assert.Equal(t, firstHeader.DtTillMax, secondHeader.DtTillMax)

		secondDetail, err := repo.DetailByKey(ctx, day, "Koledino")
		require.NoError(t, err)
		require.NotNil(t, secondDetail)
		assert.Equal(t, firstDetail.GeoName, secondDetail.GeoName)
		for _, pair := range [][2]decimal.Decimal{
			{firstDetail.BoxDeliveryBase, secondDetail.BoxDeliveryBase},
			{firstDetail.BoxDeliveryCoefExpr, secondDetail.BoxDeliveryCoefExpr},
			{firstDetail.BoxDeliveryLiter, secondDetail.BoxDeliveryLiter},
			{firstDetail.BoxDeliveryMarketplaceBase, secondDetail.BoxDeliveryMarketplaceBase},
			{firstDetail.BoxDeliveryMarketplaceCoefExpr, secondDetail.BoxDeliveryMarketplaceCoefExpr},
			{firstDetail.BoxDeliveryMarketplaceLiter, secondDetail.BoxDeliveryMarketplaceLiter},
			{firstDetail.BoxStorageBase, secondDetail.BoxStorageBase},
			{firstDetail.BoxStorageCoefExpr, secondDetail.BoxStorageCoefExpr},
			{firstDetail.BoxStorageLiter, secondDetail.BoxStorageLiter},
		} {
			assert.True(t, pair[0].Equal(pair[1]), "%s != %s", pair[0], pair[1])
		}
	})

	t.Run("malformed dates become null and overwrite previous values", func(t *testing.T) {
		flow, repo, _ := newSnapshotFlow(t)

		payload := testingutil.SamplePayload()
		payload.DtTillMax = "2024-07-01"
		_, err := flow.UpsertSnapshot(ctx, payload, snapshotDay)
		require.NoError(t, err)

		payload.DtNextBox = "2024-13-45"
		payload.DtTillMax = "null"
		_, err = flow.UpsertSnapshot(ctx, payload, snapshotDay)
		require.NoError(t, err)

		header, err := repo.HeaderByDate(ctx, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NotNil(t, header)
		assert.Nil(t, header.DtNextBox)
		assert.Nil(t, header.DtTillMax)
	})

	t.Run("entries without a warehouse name are skipped and logged as errors", func(t *testing.T) {
		var logs bytes.Buffer
		flow, repo, _ := newSnapshotFlowWithLogger(t, zerolog.New(&logs))

		payload := testingutil.SamplePayload()
		payload.Warehouses = append(payload.Warehouses, models.WarehouseTariffInput{WarehouseName: "  ", BoxStorageCoefExpr: "1"})
		result, err := flow.UpsertSnapshot(ctx, payload, snapshotDay)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, 2, result.Created)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, int64(2), result.Stored)
		assert.Contains(t, logs.String(), `"level":"error"`)
		assert.Contains(t, logs.String(), `"index":2`)

		count, err := repo.CountDetails(ctx, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("empty warehouse list still writes the header", func(t *testing.T) {
		flow, repo, _ := newSnapshotFlow(t)

		result, err := flow.UpsertSnapshot(ctx, &models.TariffPayload{DtNextBox: "2024-06-01"}, snapshotDay)
		require.NoError(t, err)
		assert.True(t, result.SnapshotWritten)
		assert.Equal(t, 0, result.Total)

		header, err := repo.HeaderByDate(ctx, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.NotNil(t, header)
	})

	t.Run("nil payload", func(t *testing.T) {
		flow, _, _ := newSnapshotFlow(t)

		_, err := flow.UpsertSnapshot(ctx, nil, snapshotDay)
		require.Error(t, err)
		assert.True(t, IsStoreError(err))
		assert.Equal(t, CodeInvalidPayload, ErrorCode(err))
	})
}

type failingDetailRepo struct {
	repository.TariffRepository
	failOn string
}

func (r *failingDetailRepo) UpsertDetail(ctx context.Context, detail *models.TariffDetail) (bool, error) {
	if detail.WarehouseName == r.failOn {
		return false, errors.New("disk full")
	}
	return r.TariffRepository.UpsertDetail(ctx, detail)
}

func TestUpsertSnapshotRollsBack(t *testing.T) {
	ctx := context.Background()
	tdb, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	defer tdb.TeardownTestDB()

	repo := repository.NewTariffRepository(tdb.DB)
	flow := NewTariffSnapshotFlow(&failingDetailRepo{TariffRepository: repo, failOn: "Tula"}, tdb.DB, zerolog.Nop())

	result, err := flow.UpsertSnapshot(ctx, testingutil.SamplePayload(), snapshotDay)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsStoreError(err))
	assert.Equal(t, CodeStoreFailed, ErrorCode(err))

	day := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	header, err := repo.HeaderByDate(ctx, day)
	require.NoError(t, err)
	assert.Nil(t, header)

	count, err := repo.CountDetails(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReadSnapshotForPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted ascending for every coefficient", func(t *testing.T) {
		flow, _, _ := newSnapshotFlow(t)

		payload := &models.TariffPayload{
			DtNextBox: "2024-06-01",
			Warehouses: []models.WarehouseTariffInput{
				{WarehouseName: "C", BoxStorageCoefExpr: "3", BoxDeliveryCoefExpr: "1", BoxDeliveryMarketplaceCoefExpr: "2"},
				{WarehouseName: "A", BoxStorageCoefExpr: "1", BoxDeliveryCoefExpr: "3", BoxDeliveryMarketplaceCoefExpr: "2"},
				{WarehouseName: "B", BoxStorageCoefExpr: "2", BoxDeliveryCoefExpr: "2", BoxDeliveryMarketplaceCoefExpr: "10,5"},
				{WarehouseName: "D", BoxStorageCoefExpr: "", BoxDeliveryCoefExpr: "", BoxDeliveryMarketplaceCoefExpr: "0,5"},
			},
		}
		_, err := flow.UpsertSnapshot(ctx, payload, snapshotDay)
		require.NoError(t, err)

		for _, sortBy := range []models.SortBy{models.SortByStorage, models.SortByDelivery, models.SortByDeliveryMarketplace} {
			t.Run(string(sortBy), func(t *testing.T) {
				rows, err := flow.ReadSnapshotForPublish(ctx, snapshotDay, sortBy)
				require.NoError(t, err)
				require.Len(t, rows, 4)
				for i := 1; i < len(rows); i++ {
					prev, cur := rows[i-1].Coefficient(sortBy), rows[i].Coefficient(sortBy)
					assert.True(t, prev.LessThanOrEqual(cur), "%s: %s before %s", sortBy, prev, cur)
				}
				require.NotNil(t, rows[0].DtNextBox)
				assert.Equal(t, "2024-06-01", rows[0].DtNextBox.Format("2006-01-02"))
			})
		}

		rows, err := flow.ReadSnapshotForPublish(ctx, snapshotDay, models.SortByDeliveryMarketplace)
		require.NoError(t, err)
		names := []string{rows[0].WarehouseName, rows[1].WarehouseName, rows[2].WarehouseName, rows[3].WarehouseName}
		assert.Equal(t, []string{"D", "A", "C", "B"}, names)
	})

	t.Run("logs the coefficient range of the sort key", func(t *testing.T) {
		var logs bytes.Buffer
		flow, _, _ := newSnapshotFlowWithLogger(t, zerolog.New(&logs))

		payload := &models.TariffPayload{
			Warehouses: []models.WarehouseTariffInput{
				{WarehouseName: "A", BoxDeliveryMarketplaceCoefExpr: "10,5"},
				{WarehouseName: "B", BoxDeliveryMarketplaceCoefExpr: "0,5"},
			},
		}
		_, err := flow.UpsertSnapshot(ctx, payload, snapshotDay)
		require.NoError(t, err)
		logs.Reset()

		rows, err := flow.ReadSnapshotForPublish(ctx, snapshotDay, models.SortByDeliveryMarketplace)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Contains(t, logs.String(), `"min":"0.5"`)
		assert.Contains(t, logs.String(), `"max":"10.5"`)
		assert.Contains(t, logs.String(), `"rows":2`)
	})

	t.Run("nothing stored", func(t *testing.T) {
		flow, _, _ := newSnapshotFlow(t)

		rows, err := flow.ReadSnapshotForPublish(ctx, snapshotDay, models.SortByStorage)
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})

	t.Run("unknown sort key", func(t *testing.T) {
		flow, _, _ := newSnapshotFlow(t)

		_, err := flow.ReadSnapshotForPublish(ctx, snapshotDay, models.SortBy("price"))
		require.Error(t, err)
		assert.True(t, IsInvalidSortKey(err))
		assert.Equal(t, CodeInvalidSort, ErrorCode(err))
	})
}
