package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/xuri/excelize/v2"
)

// XLSXPublisher writes snapshots into local workbooks addressed as "xlsx:<path>"
type XLSXPublisher struct {
	WorksheetName string

	mu sync.Mutex
}

func NewXLSXPublisher(worksheetName string) *XLSXPublisher {
	if worksheetName == "" {
		worksheetName = utils.DefaultWorksheetName
	}
	return &XLSXPublisher{WorksheetName: worksheetName}
}

func (p *XLSXPublisher) Publish(ctx context.Context, target string, rows []models.PublishRow) error {
	path := strings.TrimSpace(strings.TrimPrefix(target, XLSXTargetPrefix))
	if path == "" {
		return &PublishError{Target: target, Op: "open_workbook", Err: errors.New("empty workbook path")}
	}
	if err := ctx.Err(); err != nil {
		return &PublishError{Target: target, Op: "open_workbook", Err: err}
	}

	// workbooks are rewritten whole; serialize so two targets on one path don't interleave
	p.mu.Lock()
	defer p.mu.Unlock()

	xl, err := p.openWorkbook(path)
	if err != nil {
		return &PublishError{Target: target, Op: "open_workbook", Err: err}
	}
	defer func() { _ = xl.Close() }()

	name := p.WorksheetName
	idx, err := xl.GetSheetIndex(name)
	if err != nil {
		return &PublishError{Target: target, Op: "ensure_sheet", Err: err}
	}
	if idx == -1 {
		if _, err := xl.NewSheet(name); err != nil {
			return &PublishError{Target: target, Op: "ensure_sheet", Err: err}
		}
	}

	existing, err := xl.GetRows(name)
	if err != nil {
		return &PublishError{Target: target, Op: "read_sheet", Err: err}
	}

	values := models.SheetValues(rows)
	for i := range values {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return &PublishError{Target: target, Op: "write_rows", Err: err}
		}
		if err := xl.SetSheetRow(name, cell, &values[i]); err != nil {
			return &PublishError{Target: target, Op: "write_rows", Err: err}
		}
	}

	// drop rows left over from a longer previous snapshot, bottom up
	for r := len(existing); r > len(values); r-- {
		if err := xl.RemoveRow(name, r); err != nil {
			return &PublishError{Target: target, Op: "trim_rows", Err: err}
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &PublishError{Target: target, Op: "save_workbook", Err: err}
		}
	}
	if err := xl.SaveAs(path); err != nil {
		return &PublishError{Target: target, Op: "save_workbook", Err: err}
	}

	return nil
}

func (p *XLSXPublisher) openWorkbook(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		xl := excelize.NewFile()
		if err := xl.SetSheetName(xl.GetSheetName(0), p.WorksheetName); err != nil {
			_ = xl.Close()
			return nil, err
		}
		return xl, nil
	}
	return excelize.OpenFile(path)
}
