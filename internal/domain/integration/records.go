package integration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SyncRecord is one item fetched from the source system
type SyncRecord interface {
	// RecordType returns the sync type the record belongs to
	RecordType() SyncType
	// RecordKey returns the source identifier, unique within the type
	RecordKey() string
	// Validate returns a validation SyncError if required fields are missing
	Validate() error
	// MappingKeys lists the mappings that must resolve before the record can be pushed
	MappingKeys() []MappingKey
}

// ---------------------------------------------------------------------------
// StockRecord
// ---------------------------------------------------------------------------

// StockRecord is a stock movement reported by the source system
type StockRecord struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	ProductID    string          `json:"product_id,omitempty"`
	LocationCode string          `json:"location_code,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	MovementType string          `json:"movement_type,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
	// RequiresApproval is set by the source for manual adjustments
	RequiresApproval bool `json:"requires_approval,omitempty"`
	// ApprovedBy is set once an operator approved the movement; approved
	// movements are never diverted again.
	ApprovedBy string `json:"approved_by,omitempty"`
}

// RecordType implements SyncRecord
func (r StockRecord) RecordType() SyncType { return SyncTypeStock }

// RecordKey implements SyncRecord
func (r StockRecord) RecordKey() string { return r.ID }

// Validate implements SyncRecord
func (r StockRecord) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(r.SKU) == "" {
		missing = append(missing, "sku")
	}
	if len(missing) > 0 {
		return NewValidationError("stock record missing " + strings.Join(missing, ", "))
	}
	if r.Quantity.IsZero() {
		return NewValidationError(fmt.Sprintf("stock record %s has zero quantity", r.ID))
	}
	return nil
}

// MappingKeys implements SyncRecord
func (r StockRecord) MappingKeys() []MappingKey {
	keys := []MappingKey{NewMappingKey(MappingTypeSKUAccount, r.SKU)}
	if strings.TrimSpace(r.LocationCode) != "" {
		keys = append(keys, NewMappingKey(MappingTypeLocationWarehouse, r.LocationCode))
	}
	return keys
}

// ---------------------------------------------------------------------------
// InvoiceRecord
// ---------------------------------------------------------------------------

// InvoiceLine is one line of a source invoice
type InvoiceLine struct {
	SKU       string          `json:"sku"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRateID string          `json:"tax_rate_id,omitempty"`
	UOM       string          `json:"uom,omitempty"`
}

// InvoiceRecord is a sales invoice reported by the source system
type InvoiceRecord struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	CustomerID string          `json:"customer_id"`
	Currency   string          `json:"currency,omitempty"`
	IssuedAt   time.Time       `json:"issued_at"`
	Total      decimal.Decimal `json:"total"`
	Lines      []InvoiceLine   `json:"lines"`
}

// RecordType implements SyncRecord
func (r InvoiceRecord) RecordType() SyncType { return SyncTypeInvoice }

// RecordKey implements SyncRecord
func (r InvoiceRecord) RecordKey() string { return r.ID }

// Validate implements SyncRecord
func (r InvoiceRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Number) == "" {
		return NewValidationError("invoice record missing id or number")
	}
	if strings.TrimSpace(r.CustomerID) == "" {
		return NewValidationError(fmt.Sprintf("invoice %s has no customer", r.Number))
	}
	if len(r.Lines) == 0 {
		return NewValidationError(fmt.Sprintf("invoice %s has no lines", r.Number))
	}
	for i, line := range r.Lines {
		if strings.TrimSpace(line.SKU) == "" {
			return NewValidationError(fmt.Sprintf("invoice %s line %d has no sku", r.Number, i+1))
		}
		if !line.Quantity.IsPositive() {
			return NewValidationError(fmt.Sprintf("invoice %s line %d has non-positive quantity", r.Number, i+1))
		}
		if line.UnitPrice.IsNegative() {
			return NewValidationError(fmt.Sprintf("invoice %s line %d has negative price", r.Number, i+1))
		}
	}
	return nil
}

// MappingKeys implements SyncRecord. Duplicate keys are reported once.
func (r InvoiceRecord) MappingKeys() []MappingKey {
	seen := make(map[MappingKey]struct{})
	keys := make([]MappingKey, 0, 1+len(r.Lines)*3)
	add := func(k MappingKey) {
		if k.SourceValue == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	add(NewMappingKey(MappingTypeCustomer, r.CustomerID))
	for _, line := range r.Lines {
		add(NewMappingKey(MappingTypeSKUAccount, line.SKU))
		add(NewMappingKey(MappingTypeTaxRate, line.TaxRateID))
		add(NewMappingKey(MappingTypeUOM, line.UOM))
	}
	return keys
}

// ---------------------------------------------------------------------------
// CustomerRecord
// ---------------------------------------------------------------------------

// CustomerRecord is customer master data reported by the source system
type CustomerRecord struct {
	ID        string `json:"id"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name"`
	TaxNumber string `json:"tax_number,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	TaxRateID string `json:"tax_rate_id,omitempty"`
}

// RecordType implements SyncRecord
func (r CustomerRecord) RecordType() SyncType { return SyncTypeCustomer }

// RecordKey implements SyncRecord
func (r CustomerRecord) RecordKey() string { return r.ID }

// Validate implements SyncRecord
func (r CustomerRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return NewValidationError("customer record missing id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError(fmt.Sprintf("customer %s has no name", r.ID))
	}
	return nil
}

// MappingKeys implements SyncRecord
func (r CustomerRecord) MappingKeys() []MappingKey {
	if strings.TrimSpace(r.TaxRateID) == "" {
		return nil
	}
	return []MappingKey{NewMappingKey(MappingTypeTaxRate, r.TaxRateID)}
}

// ---------------------------------------------------------------------------
// Payload snapshots
// ---------------------------------------------------------------------------

// EncodeRecord serializes a record into the snapshot stored on a failed record
func EncodeRecord(record SyncRecord) (string, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode %s record %s: %w", record.RecordType(), record.RecordKey(), err)
	}
	return string(b), nil
}

// DecodeRecord restores a record from its snapshot.
// A payload that cannot be decoded is a validation error.
func DecodeRecord(recordType SyncType, payload string) (SyncRecord, error) {
	var (
		record SyncRecord
		err    error
	)
	switch recordType {
	case SyncTypeStock:
		var r StockRecord
		err = json.Unmarshal([]byte(payload), &r)
		record = r
	case SyncTypeInvoice:
		var r InvoiceRecord
		err = json.Unmarshal([]byte(payload), &r)
		record = r
	case SyncTypeCustomer:
		var r CustomerRecord
		err = json.Unmarshal([]byte(payload), &r)
		record = r
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown record type %q", recordType))
	}
	if err != nil {
		return nil, &SyncError{Kind: KindValidation, Code: CodeValidation, Message: "payload snapshot is not decodable", Err: err}
	}
	return record, nil
}

// ---------------------------------------------------------------------------
// MappedRecord
// ---------------------------------------------------------------------------

// MappedRecord is a record whose mapping keys all resolved
type MappedRecord struct {
	Record  SyncRecord
	Targets map[MappingKey]string
}

// Target returns the resolved target value for a mapping type and source value
func (m MappedRecord) Target(mappingType MappingType, sourceValue string) string {
	return m.Targets[NewMappingKey(mappingType, sourceValue)]
}
