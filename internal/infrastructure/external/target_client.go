package external

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
)

// Target API paths
const (
	pathStockMovementsBatch = "/stock-movements/batch"
	pathInvoicesBatch       = "/invoices/batch"
	pathCustomersBatch      = "/customers/batch"
)

// itemStatusOK is the per-item status of an applied record
const itemStatusOK = "ok"

// batchRequest is the body of every batch upsert. Items are keyed by the
// source record key, which the target uses as its idempotency key.
type batchRequest[T any] struct {
	Items []batchItem[T] `json:"items"`
}

type batchItem[T any] struct {
	Key  string `json:"key"`
	Data T      `json:"data"`
}

type batchResponse struct {
	Results []itemResult `json:"results"`
}

type itemResult struct {
	Key     string `json:"key"`
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// stockMovement is a stock record expressed in target identifiers
type stockMovement struct {
	Account      string          `json:"account"`
	Warehouse    string          `json:"warehouse,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	MovementType string          `json:"movement_type,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type invoiceLine struct {
	Account   string          `json:"account"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxCode   string          `json:"tax_code,omitempty"`
	Unit      string          `json:"unit,omitempty"`
}

type invoice struct {
	Number          string          `json:"number"`
	CustomerAccount string          `json:"customer_account"`
	Currency        string          `json:"currency,omitempty"`
	IssuedAt        time.Time       `json:"issued_at"`
	Total           decimal.Decimal `json:"total"`
	Lines           []invoiceLine   `json:"lines"`
}

type customer struct {
	Code      string `json:"code,omitempty"`
	Name      string `json:"name"`
	TaxNumber string `json:"tax_number,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	TaxCode   string `json:"tax_code,omitempty"`
}

// TargetClient pushes mapped records to the target REST API as batch upserts
type TargetClient struct {
	api *apiClient
}

var _ integration.TargetClient = (*TargetClient)(nil)

// NewTargetClient creates a target client
func NewTargetClient(cfg ClientConfig, logger *zap.Logger) (*TargetClient, error) {
	if cfg.Name == "" {
		cfg.Name = "target"
	}
	api, err := newAPIClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &TargetClient{api: api}, nil
}

// PushStockMovements implements integration.TargetClient
func (c *TargetClient) PushStockMovements(ctx context.Context, records []integration.MappedRecord) (*integration.PushResult, error) {
	return push(ctx, c.api, pathStockMovementsBatch, records, toStockMovement)
}

// PushInvoices implements integration.TargetClient
func (c *TargetClient) PushInvoices(ctx context.Context, records []integration.MappedRecord) (*integration.PushResult, error) {
	return push(ctx, c.api, pathInvoicesBatch, records, toInvoice)
}

// PushCustomers implements integration.TargetClient
func (c *TargetClient) PushCustomers(ctx context.Context, records []integration.MappedRecord) (*integration.PushResult, error) {
	return push(ctx, c.api, pathCustomersBatch, records, toCustomer)
}

func push[T any](ctx context.Context, api *apiClient, path string, records []integration.MappedRecord, convert func(integration.MappedRecord) (T, error)) (*integration.PushResult, error) {
	if len(records) == 0 {
		return integration.NewPushResult(0, nil), nil
	}

	errs := make(map[string]error)
	req := batchRequest[T]{Items: make([]batchItem[T], 0, len(records))}
	for _, rec := range records {
		data, err := convert(rec)
		if err != nil {
			errs[rec.Record.RecordKey()] = err
			continue
		}
		req.Items = append(req.Items, batchItem[T]{Key: rec.Record.RecordKey(), Data: data})
	}
	if len(req.Items) == 0 {
		return integration.NewPushResult(len(records), errs), nil
	}

	var resp batchResponse
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	if err := api.do(ctx, http.MethodPost, path, nil, req, &resp, headers); err != nil {
		return nil, err
	}

	reported := make(map[string]itemResult, len(resp.Results))
	for _, r := range resp.Results {
		reported[r.Key] = r
	}
	for _, item := range req.Items {
		r, ok := reported[item.Key]
		switch {
		case !ok:
			errs[item.Key] = integration.NewTransientError("target reported no result for "+item.Key, nil)
		case r.Status != itemStatusOK:
			errs[item.Key] = itemError(r)
		}
	}

	api.logger.Debug("Pushed batch to target",
		zap.String("path", path),
		zap.Int("items", len(req.Items)),
		zap.Int("failed", len(errs)))
	return integration.NewPushResult(len(records), errs), nil
}

// itemError classifies a per-item rejection. Only explicit validation codes are final.
func itemError(r itemResult) error {
	message := r.Message
	if message == "" {
		message = "target rejected " + r.Key
	}
	switch r.Code {
	case integration.CodeValidation, "INVALID", "UNPROCESSABLE":
		return integration.NewValidationError(message)
	case integration.CodeMappingNotFound:
		return &integration.SyncError{Kind: integration.KindMappingNotFound, Code: r.Code, Message: message}
	default:
		return integration.NewTransientError(message, fmt.Errorf("status %q code %q", r.Status, r.Code))
	}
}

func targetOf(rec integration.MappedRecord, mappingType integration.MappingType, sourceValue string) (string, error) {
	if sourceValue == "" {
		return "", nil
	}
	target := rec.Target(mappingType, sourceValue)
	if target == "" {
		return "", integration.NewMappingNotFoundError(integration.NewMappingKey(mappingType, sourceValue))
	}
	return target, nil
}

func toStockMovement(rec integration.MappedRecord) (stockMovement, error) {
	r, ok := rec.Record.(integration.StockRecord)
	if !ok {
		return stockMovement{}, integration.NewValidationError(fmt.Sprintf("record %s is not a stock record", rec.Record.RecordKey()))
	}
	account, err := targetOf(rec, integration.MappingTypeSKUAccount, r.SKU)
	if err != nil {
		return stockMovement{}, err
	}
	warehouse, err := targetOf(rec, integration.MappingTypeLocationWarehouse, r.LocationCode)
	if err != nil {
		return stockMovement{}, err
	}
	return stockMovement{
		Account:      account,
		Warehouse:    warehouse,
		Quantity:     r.Quantity,
		UnitCost:     r.UnitCost,
		MovementType: r.MovementType,
		Reference:    r.Reference,
		Reason:       r.Reason,
		OccurredAt:   r.OccurredAt,
	}, nil
}

func toInvoice(rec integration.MappedRecord) (invoice, error) {
	r, ok := rec.Record.(integration.InvoiceRecord)
	if !ok {
		return invoice{}, integration.NewValidationError(fmt.Sprintf("record %s is not an invoice", rec.Record.RecordKey()))
	}
	customerAccount, err := targetOf(rec, integration.MappingTypeCustomer, r.CustomerID)
	if err != nil {
		return invoice{}, err
	}
	out := invoice{
		Number:          r.Number,
		CustomerAccount: customerAccount,
		Currency:        r.Currency,
		IssuedAt:        r.IssuedAt,
		Total:           r.Total,
		Lines:           make([]invoiceLine, 0, len(r.Lines)),
	}
	for _, line := range r.Lines {
		account, err := targetOf(rec, integration.MappingTypeSKUAccount, line.SKU)
		if err != nil {
			return invoice{}, err
		}
		taxCode, err := targetOf(rec, integration.MappingTypeTaxRate, line.TaxRateID)
		if err != nil {
			return invoice{}, err
		}
		unit, err := targetOf(rec, integration.MappingTypeUOM, line.UOM)
		if err != nil {
			return invoice{}, err
		}
		out.Lines = append(out.Lines, invoiceLine{
			Account:   account,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			TaxCode:   taxCode,
			Unit:      unit,
		})
	}
	return out, nil
}

func toCustomer(rec integration.MappedRecord) (customer, error) {
	r, ok := rec.Record.(integration.CustomerRecord)
	if !ok {
		return customer{}, integration.NewValidationError(fmt.Sprintf("record %s is not a customer", rec.Record.RecordKey()))
	}
	taxCode, err := targetOf(rec, integration.MappingTypeTaxRate, r.TaxRateID)
	if err != nil {
		return customer{}, err
	}
	return customer{
		Code:      r.Code,
		Name:      r.Name,
		TaxNumber: r.TaxNumber,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   r.Address,
		TaxCode:   taxCode,
	}, nil
}
