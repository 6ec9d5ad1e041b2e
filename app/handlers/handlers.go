// Package handlers contains HTTP request handlers for the ops endpoints
package handlers

import (
	"github.com/amirphl/wb-tariffs-sync/app/dto"
	"github.com/amirphl/wb-tariffs-sync/app/scheduler"
	"github.com/gofiber/fiber/v3"
)

// SyncController is the part of the scheduler the HTTP surface drives
type SyncController interface {
	Status() scheduler.Status
	TryTrigger() bool
}

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: errorCode, Details: details}})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}
