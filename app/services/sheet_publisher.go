package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/wb-tariffs-sync/models"
)

// XLSXTargetPrefix marks a target as a local workbook path instead of a Google spreadsheet id
const XLSXTargetPrefix = "xlsx:"

var ErrNoPublisher = errors.New("no publisher configured for target kind")

// SheetPublisher overwrites a target worksheet with header plus rows
type SheetPublisher interface {
	Publish(ctx context.Context, target string, rows []models.PublishRow) error
}

// PublishError reports which target failed and at which step
type PublishError struct {
	Target string
	Op     string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %s: %v", e.Target, e.Op, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func IsPublishError(err error) bool {
	var publishErr *PublishError
	return errors.As(err, &publishErr)
}

// IsXLSXTarget reports whether target names a local workbook
func IsXLSXTarget(target string) bool {
	return strings.HasPrefix(target, XLSXTargetPrefix)
}

// TargetRouter dispatches to the publisher matching the target kind
type TargetRouter struct {
	Google SheetPublisher
	XLSX   SheetPublisher
}

func NewTargetRouter(google, xlsx SheetPublisher) *TargetRouter {
	return &TargetRouter{Google: google, XLSX: xlsx}
}

func (r *TargetRouter) Publish(ctx context.Context, target string, rows []models.PublishRow) error {
	publisher := r.Google
	if IsXLSXTarget(target) {
		publisher = r.XLSX
	}
	if publisher == nil {
		return &PublishError{Target: target, Op: "route", Err: ErrNoPublisher}
	}
	return publisher.Publish(ctx, target, rows)
}
