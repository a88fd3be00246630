package external

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
)

// Source API paths
const (
	pathStockMovements = "/stock-movements"
	pathInvoices       = "/invoices"
	pathCustomers      = "/customers"
)

// maxPages bounds a single fetch so a misbehaving has_more flag cannot loop forever
const maxPages = 10000

// page is one page of a paginated source listing
type page[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}

// SourceClient reads changed records from the source REST API.
// Listings are paginated with page/page_size and filtered by updated_from/updated_to.
type SourceClient struct {
	api *apiClient
}

var _ integration.SourceClient = (*SourceClient)(nil)

// NewSourceClient creates a source client
func NewSourceClient(cfg ClientConfig, logger *zap.Logger) (*SourceClient, error) {
	if cfg.Name == "" {
		cfg.Name = "source"
	}
	api, err := newAPIClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &SourceClient{api: api}, nil
}

// FetchStockChanges implements integration.SourceClient
func (c *SourceClient) FetchStockChanges(ctx context.Context, from, to time.Time) ([]integration.StockRecord, error) {
	return fetchAll[integration.StockRecord](ctx, c.api, pathStockMovements, from, to)
}

// FetchInvoices implements integration.SourceClient
func (c *SourceClient) FetchInvoices(ctx context.Context, from, to time.Time) ([]integration.InvoiceRecord, error) {
	return fetchAll[integration.InvoiceRecord](ctx, c.api, pathInvoices, from, to)
}

// FetchCustomers implements integration.SourceClient
func (c *SourceClient) FetchCustomers(ctx context.Context, from, to time.Time) ([]integration.CustomerRecord, error) {
	return fetchAll[integration.CustomerRecord](ctx, c.api, pathCustomers, from, to)
}

// fetchAll walks every page of a listing, preserving the order the source returns
func fetchAll[T any](ctx context.Context, api *apiClient, path string, from, to time.Time) ([]T, error) {
	var records []T
	for pageNo := 1; pageNo <= maxPages; pageNo++ {
		query := url.Values{}
		query.Set("updated_from", from.UTC().Format(time.RFC3339))
		query.Set("updated_to", to.UTC().Format(time.RFC3339))
		query.Set("page", strconv.Itoa(pageNo))
		query.Set("page_size", strconv.Itoa(api.cfg.PageSize))

		var p page[T]
		if err := api.do(ctx, http.MethodGet, path, query, nil, &p, nil); err != nil {
			return nil, err
		}
		records = append(records, p.Data...)
		if !p.HasMore || len(p.Data) == 0 {
			break
		}
	}

	api.logger.Debug("Fetched source records",
		zap.String("path", path),
		zap.Int("count", len(records)))
	return records, nil
}
