package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/utils"
)

const maxErrorBodyBytes = 4 << 10

// FetchError reports a failed upstream call. StatusCode is 0 when no response was received.
type FetchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tariff api: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("tariff api: %s: %v", e.Message, e.Err)
	}
	return "tariff api: " + e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// TariffFetcher retrieves the box tariffs for one calendar date
type TariffFetcher interface {
	FetchTariffs(ctx context.Context, date time.Time) (*models.TariffPayload, error)
}

type TariffAPIClient struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
}

func NewTariffAPIClient(baseURL, token, userAgent string, timeout time.Duration) *TariffAPIClient {
	if baseURL == "" {
		baseURL = utils.DefaultTariffAPIURL
	}
	if timeout <= 0 {
		timeout = utils.DefaultTariffAPITimeout
	}
	if userAgent == "" {
		userAgent = utils.DefaultUserAgent
	}
	return &TariffAPIClient{
		BaseURL:    baseURL,
		Token:      token,
		UserAgent:  userAgent,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// upstream envelope: {"response":{"data":{...}}}
type tariffEnvelope struct {
	Response struct {
		Data *tariffData `json:"data"`
	} `json:"response"`
}

type tariffData struct {
	DtNextBox     apiString          `json:"dtNextBox"`
	DtTillMax     apiString          `json:"dtTillMax"`
	WarehouseList []warehouseTariffs `json:"warehouseList"`
}

type warehouseTariffs struct {
	BoxDeliveryBase                apiString `json:"boxDeliveryBase"`
	BoxDeliveryCoefExpr            apiString `json:"boxDeliveryCoefExpr"`
	BoxDeliveryLiter               apiString `json:"boxDeliveryLiter"`
	BoxDeliveryMarketplaceBase     apiString `json:"boxDeliveryMarketplaceBase"`
	BoxDeliveryMarketplaceCoefExpr apiString `json:"boxDeliveryMarketplaceCoefExpr"`
	BoxDeliveryMarketplaceLiter    apiString `json:"boxDeliveryMarketplaceLiter"`
	BoxStorageBase                 apiString `json:"boxStorageBase"`
	BoxStorageCoefExpr             apiString `json:"boxStorageCoefExpr"`
	BoxStorageLiter                apiString `json:"boxStorageLiter"`
	GeoName                        apiString `json:"geoName"`
	WarehouseName                  apiString `json:"warehouseName"`
}

// apiString accepts a JSON string, number or null; null decodes to ""
type apiString string

func (s *apiString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = apiString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*s = apiString(n.String())
	return nil
}

// FetchTariffs calls GET <BaseURL>?date=YYYY-MM-DD once; there is no retry
func (c *TariffAPIClient) FetchTariffs(ctx context.Context, date time.Time) (*models.TariffPayload, error) {
	endpoint, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, &FetchError{Message: "invalid base url", Err: err}
	}
	q := endpoint.Query()
	q.Set("date", utils.FormatDate(date))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &FetchError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if auth := bearer(c.Token); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &FetchError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out tariffEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &FetchError{Message: "failed to decode response", Err: err}
	}
	if out.Response.Data == nil {
		return nil, &FetchError{Message: "response has no data"}
	}

	return out.Response.Data.toPayload(), nil
}

func (d *tariffData) toPayload() *models.TariffPayload {
	payload := &models.TariffPayload{
		DtNextBox:  string(d.DtNextBox),
		DtTillMax:  string(d.DtTillMax),
		Warehouses: make([]models.WarehouseTariffInput, 0, len(d.WarehouseList)),
	}
	for _, w := range d.WarehouseList {
		payload.Warehouses = append(payload.Warehouses, models.WarehouseTariffInput{
			WarehouseName:                  string(w.WarehouseName),
			GeoName:                        string(w.GeoName),
			BoxDeliveryBase:                string(w.BoxDeliveryBase),
			BoxDeliveryCoefExpr:            string(w.BoxDeliveryCoefExpr),
			BoxDeliveryLiter:               string(w.BoxDeliveryLiter),
			BoxDeliveryMarketplaceBase:     string(w.BoxDeliveryMarketplaceBase),
			BoxDeliveryMarketplaceCoefExpr: string(w.BoxDeliveryMarketplaceCoefExpr),
			BoxDeliveryMarketplaceLiter:    string(w.BoxDeliveryMarketplaceLiter),
			BoxStorageBase:                 string(w.BoxStorageBase),
			BoxStorageCoefExpr:             string(w.BoxStorageCoefExpr),
			BoxStorageLiter:                string(w.BoxStorageLiter),
		})
	}
	return payload
}

func bearer(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}
