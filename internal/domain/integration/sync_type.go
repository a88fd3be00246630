package integration

import (
	"fmt"
	"strings"
)

// SyncType identifies the kind of record a sync run moves between systems
type SyncType string

const (
	// SyncTypeStock synchronizes stock movements
	SyncTypeStock SyncType = "STOCK"
	// SyncTypeInvoice synchronizes sales invoices
	SyncTypeInvoice SyncType = "INVOICE"
	// SyncTypeCustomer synchronizes customer master data
	SyncTypeCustomer SyncType = "CUSTOMER"
)

// AllSyncTypes returns every sync type in the order a full sync runs them.
// Customers go first so invoice customer mappings exist by the time invoices are pushed.
func AllSyncTypes() []SyncType {
	return []SyncType{SyncTypeCustomer, SyncTypeStock, SyncTypeInvoice}
}

// IsValid returns true if the sync type is known
func (t SyncType) IsValid() bool {
	switch t {
	case SyncTypeStock, SyncTypeInvoice, SyncTypeCustomer:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncType
func (t SyncType) String() string {
	return string(t)
}

// ParseSyncType parses a sync type case-insensitively
func ParseSyncType(s string) (SyncType, error) {
	t := SyncType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidSyncType.WithMessage(fmt.Sprintf("unknown sync type %q", s))
	}
	return t, nil
}

// SyncScope selects which sync types a scheduled or manual sync runs
type SyncScope string

// SyncScopeAll runs every sync type
const SyncScopeAll SyncScope = "ALL"

// ParseSyncScope accepts ALL or any single sync type
func ParseSyncScope(s string) (SyncScope, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if normalized == "" || normalized == string(SyncScopeAll) {
		return SyncScopeAll, nil
	}
	t, err := ParseSyncType(normalized)
	if err != nil {
		return "", err
	}
	return SyncScope(t), nil
}

// Types expands the scope into the sync types it covers
func (s SyncScope) Types() []SyncType {
	if s == SyncScopeAll || s == "" {
		return AllSyncTypes()
	}
	return []SyncType{SyncType(s)}
}

// String returns the string representation of SyncScope
func (s SyncScope) String() string {
	return string(s)
}
