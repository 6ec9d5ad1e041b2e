package handlers

import (
	"github.com/amirphl/wb-tariffs-sync/app/dto"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

type TariffSyncHandlerInterface interface {
	Health(c fiber.Ctx) error
	Status(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
}

type TariffSyncHandler struct {
	sync    SyncController
	version string
	logger  zerolog.Logger
}

func NewTariffSyncHandler(sync SyncController, version string, logger zerolog.Logger) TariffSyncHandlerInterface {
	return &TariffSyncHandler{
		sync:    sync,
		version: version,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Health reports liveness only; it never touches the database or upstream
func (h *TariffSyncHandler) Health(c fiber.Ctx) error {
	return successResponse(c, fiber.StatusOK, "Service is healthy", dto.HealthData{
		Status:    "ok",
		Timestamp: utils.UTCNow().Unix(),
		Version:   h.version,
	})
}

// Status returns the scheduler state, last success and next planned run
func (h *TariffSyncHandler) Status(c fiber.Ctx) error {
	st := h.sync.Status()
	return successResponse(c, fiber.StatusOK, "Sync status retrieved successfully", dto.SyncStatusResponse{
		State:             st.State.String(),
		LastSuccessAt:     st.LastSuccessAt,
		NextRunAt:         st.NextRunAt,
		ConfiguredTargets: st.ConfiguredTargets,
	})
}

// Refresh starts a tick in the background. 409 when one is already running.
func (h *TariffSyncHandler) Refresh(c fiber.Ctx) error {
	if !h.sync.TryTrigger() {
		return errorResponse(c, fiber.StatusConflict, "A sync run is already in progress", "SYNC_ALREADY_RUNNING", nil)
	}

	subject, _ := c.Locals("admin_subject").(string)
	h.logger.Info().Str("subject", subject).Msg("Manual sync triggered")

	return successResponse(c, fiber.StatusAccepted, "Sync run started", dto.RefreshResponse{Accepted: true})
}
