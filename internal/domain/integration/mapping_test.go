package integration

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMapping(t *testing.T) {
	t.Run("Normalizes source value", func(t *testing.T) {
		m, err := NewMapping(MappingTypeSKUAccount, "  sku-1 ", " 153.01 ", "raw material")
		require.NoError(t, err)
		assert.Equal(t, "SKU-1", m.SourceValue)
		assert.Equal(t, "153.01", m.TargetValue)
		assert.True(t, m.IsActive)
		assert.Equal(t, NewMappingKey(MappingTypeSKUAccount, "sku-1"), m.Key())
	})

	t.Run("Requires both values", func(t *testing.T) {
		_, err := NewMapping(MappingTypeUOM, "", "ADET", "")
		assert.ErrorIs(t, err, ErrInvalidMapping)
		_, err = NewMapping(MappingTypeUOM, "PCS", " ", "")
		assert.ErrorIs(t, err, ErrInvalidMapping)
	})

	t.Run("Rejects unknown type", func(t *testing.T) {
		_, err := NewMapping(MappingType("COLOR"), "RED", "1", "")
		assert.ErrorIs(t, err, ErrInvalidMappingType)
	})
}

func TestMapping_UpdateReactivates(t *testing.T) {
	m, _ := NewMapping(MappingTypeLocationWarehouse, "main", "WH-01", "")
	m.Deactivate()
	assert.False(t, m.IsActive)

	require.NoError(t, m.Update("WH-02", "moved"))
	assert.True(t, m.IsActive)
	assert.Equal(t, "WH-02", m.TargetValue)
}

func TestMappingKey_RoundTrip(t *testing.T) {
	key := NewMappingKey(MappingTypeTaxRate, "vat-20")
	parsed, err := ParseMappingKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseMappingKey("no-separator")
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestInvoiceRecord_MappingKeys(t *testing.T) {
	inv := InvoiceRecord{
		ID:         "INV-1",
		Number:     "2026-0001",
		CustomerID: "c-9",
		Lines: []InvoiceLine{
			{SKU: "sku-1", Quantity: decimal.NewFromInt(1), TaxRateID: "vat20", UOM: "pcs"},
			{SKU: "SKU-1", Quantity: decimal.NewFromInt(2), TaxRateID: "VAT20"},
			{SKU: "sku-2", Quantity: decimal.NewFromInt(1)},
		},
	}
	require.NoError(t, inv.Validate())
	assert.Equal(t, []MappingKey{
		NewMappingKey(MappingTypeCustomer, "C-9"),
		NewMappingKey(MappingTypeSKUAccount, "SKU-1"),
		NewMappingKey(MappingTypeTaxRate, "VAT20"),
		NewMappingKey(MappingTypeUOM, "PCS"),
		NewMappingKey(MappingTypeSKUAccount, "SKU-2"),
	}, inv.MappingKeys())
}

func TestRecordValidation(t *testing.T) {
	tests := []struct {
		name   string
		record SyncRecord
		valid  bool
	}{
		{"stock ok", newStock("M-1", "SKU-1"), true},
		{"stock missing sku", StockRecord{ID: "M-1", Quantity: decimal.NewFromInt(1)}, false},
		{"stock zero quantity", StockRecord{ID: "M-1", SKU: "A"}, false},
		{"invoice without lines", InvoiceRecord{ID: "I", Number: "N", CustomerID: "C"}, false},
		{"invoice negative qty", InvoiceRecord{ID: "I", Number: "N", CustomerID: "C", Lines: []InvoiceLine{{SKU: "A", Quantity: decimal.NewFromInt(-1)}}}, false},
		{"customer ok", CustomerRecord{ID: "C-1", Name: "Acme"}, true},
		{"customer without name", CustomerRecord{ID: "C-1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var se *SyncError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, CodeValidation, se.Code)
			assert.False(t, se.Retryable())
		})
	}
}
