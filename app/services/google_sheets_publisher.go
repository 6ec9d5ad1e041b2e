package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type GoogleSheetsOptions struct {
	WorksheetName  string
	DefaultRows    int
	DefaultColumns int
	RequestTimeout time.Duration
}

// GoogleSheetsPublisher overwrites one worksheet per spreadsheet id through the Sheets v4 API
type GoogleSheetsPublisher struct {
	svc  *sheets.Service
	opts GoogleSheetsOptions
}

// ServiceAccountClient authenticates as a service account with the spreadsheets scope.
// privateKey is the PEM block; literal "\n" sequences from env files are unescaped.
func ServiceAccountClient(ctx context.Context, email, privateKey string) option.ClientOption {
	conf := &jwt.Config{
		Email:      email,
		PrivateKey: []byte(strings.ReplaceAll(privateKey, `\n`, "\n")),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}
	return option.WithHTTPClient(conf.Client(ctx))
}

func NewGoogleSheetsPublisher(ctx context.Context, opts GoogleSheetsOptions, clientOpts ...option.ClientOption) (*GoogleSheetsPublisher, error) {
	if opts.WorksheetName == "" {
		opts.WorksheetName = utils.DefaultWorksheetName
	}
	if opts.DefaultRows <= 0 {
		opts.DefaultRows = utils.DefaultSheetRows
	}
	if opts.DefaultColumns <= 0 {
		opts.DefaultColumns = utils.DefaultSheetColumns
	}

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleSheetsPublisher{svc: svc, opts: opts}, nil
}

func (p *GoogleSheetsPublisher) Publish(ctx context.Context, target string, rows []models.PublishRow) error {
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	values := models.SheetValues(rows)
	neededRows := int64(len(values))
	neededCols := int64(len(models.PublishHeader))

	grid, err := p.ensureSheet(ctx, target, neededRows, neededCols)
	if err != nil {
		return err
	}

	// Write first, then clear what the previous publish left below the data.
	// A failed write keeps the last good content on the sheet.
	name := quoteSheetName(p.opts.WorksheetName)
	_, err = p.svc.Spreadsheets.Values.Update(target, name+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return &PublishError{Target: target, Op: "write_values", Err: err}
	}

	if grid.RowCount > neededRows {
		stale := fmt.Sprintf("%s!A%d:%s%d", name, neededRows+1, columnLetter(grid.ColumnCount), grid.RowCount)
		if _, err := p.svc.Spreadsheets.Values.Clear(target, stale, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return &PublishError{Target: target, Op: "clear_values", Err: err}
		}
	}

	return nil
}

// ensureSheet adds the worksheet when absent and grows its grid when the data won't fit.
// It returns the grid size the worksheet has afterwards.
func (p *GoogleSheetsPublisher) ensureSheet(ctx context.Context, target string, neededRows, neededCols int64) (*sheets.GridProperties, error) {
	ss, err := p.svc.Spreadsheets.Get(target).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, &PublishError{Target: target, Op: "load_spreadsheet", Err: err}
	}

	var props *sheets.SheetProperties
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == p.opts.WorksheetName {
			props = s.Properties
			break
		}
	}

	if props == nil {
		grid := &sheets.GridProperties{
			RowCount:    max(int64(p.opts.DefaultRows), neededRows),
			ColumnCount: max(int64(p.opts.DefaultColumns), neededCols),
		}
		req := &sheets.Request{AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{Title: p.opts.WorksheetName, GridProperties: grid},
		}}
		if err := p.batchUpdate(ctx, target, req); err != nil {
			return nil, &PublishError{Target: target, Op: "add_sheet", Err: err}
		}
		return grid, nil
	}

	var rowCount, colCount int64
	if props.GridProperties != nil {
		rowCount, colCount = props.GridProperties.RowCount, props.GridProperties.ColumnCount
	}
	if rowCount >= neededRows && colCount >= neededCols {
		return &sheets.GridProperties{RowCount: rowCount, ColumnCount: colCount}, nil
	}

	grid := &sheets.GridProperties{
		RowCount:    max(rowCount, neededRows),
		ColumnCount: max(colCount, neededCols),
	}
	req := &sheets.Request{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
		Properties: &sheets.SheetProperties{
			SheetId:         props.SheetId,
			GridProperties:  grid,
			ForceSendFields: []string{"SheetId"},
		},
		Fields: "gridProperties.rowCount,gridProperties.columnCount",
	}}
	if err := p.batchUpdate(ctx, target, req); err != nil {
		return nil, &PublishError{Target: target, Op: "resize_sheet", Err: err}
	}
	return grid, nil
}

func (p *GoogleSheetsPublisher) batchUpdate(ctx context.Context, target string, reqs ...*sheets.Request) error {
	_, err := p.svc.Spreadsheets.BatchUpdate(target, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	return err
}

// columnLetter converts a 1-based column index to A1 notation (1 -> A, 27 -> AA)
func columnLetter(n int64) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
