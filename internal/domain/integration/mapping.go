package integration

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// MappingType
// ---------------------------------------------------------------------------

// MappingType identifies which pair of identifier spaces a mapping bridges
type MappingType string

const (
	// MappingTypeSKUAccount maps a source SKU to a target stock account code
	MappingTypeSKUAccount MappingType = "SKU_ACCOUNT"
	// MappingTypeLocationWarehouse maps a source location to a target warehouse code
	MappingTypeLocationWarehouse MappingType = "LOCATION_WAREHOUSE"
	// MappingTypeCustomer maps a source customer ID to a target customer account
	MappingTypeCustomer MappingType = "CUSTOMER"
	// MappingTypeTaxRate maps a source tax rate ID to a target tax code
	MappingTypeTaxRate MappingType = "TAX_RATE"
	// MappingTypeUOM maps a source unit of measure to a target unit code
	MappingTypeUOM MappingType = "UOM"
)

// AllMappingTypes returns every supported mapping type
func AllMappingTypes() []MappingType {
	return []MappingType{
		MappingTypeSKUAccount,
		MappingTypeLocationWarehouse,
		MappingTypeCustomer,
		MappingTypeTaxRate,
		MappingTypeUOM,
	}
}

// IsValid returns true if the mapping type is supported
func (t MappingType) IsValid() bool {
	for _, known := range AllMappingTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation of MappingType
func (t MappingType) String() string {
	return string(t)
}

// ParseMappingType parses a mapping type case-insensitively
func ParseMappingType(s string) (MappingType, error) {
	t := MappingType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidMappingType.WithMessage(fmt.Sprintf("unknown mapping type %q", s))
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// MappingKey Value Object
// ---------------------------------------------------------------------------

// MappingKey is the lookup key of a mapping: (type, normalized source value)
type MappingKey struct {
	Type        MappingType
	SourceValue string
}

// NewMappingKey builds a key with a normalized source value
func NewMappingKey(mappingType MappingType, sourceValue string) MappingKey {
	return MappingKey{Type: mappingType, SourceValue: NormalizeSourceValue(sourceValue)}
}

// String renders the key as TYPE:VALUE
func (k MappingKey) String() string {
	return string(k.Type) + ":" + k.SourceValue
}

// ParseMappingKey parses the TYPE:VALUE form produced by String
func ParseMappingKey(s string) (MappingKey, error) {
	typ, value, ok := strings.Cut(s, ":")
	if !ok {
		return MappingKey{}, ErrInvalidMapping.WithMessage(fmt.Sprintf("malformed mapping key %q", s))
	}
	t, err := ParseMappingType(typ)
	if err != nil {
		return MappingKey{}, err
	}
	return NewMappingKey(t, value), nil
}

// NormalizeSourceValue trims and upper-cases a source identifier so lookups
// are insensitive to the casing used by the source system.
func NormalizeSourceValue(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// ---------------------------------------------------------------------------
// Mapping Entity
// ---------------------------------------------------------------------------

// Mapping is a stored equivalence between a source and a target identifier.
// Inactive mappings are kept for history but never resolve.
type Mapping struct {
	ID          int64
	MappingType MappingType
	SourceValue string
	TargetValue string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewMapping creates an active mapping
func NewMapping(mappingType MappingType, sourceValue, targetValue, description string) (*Mapping, error) {
	if !mappingType.IsValid() {
		return nil, ErrInvalidMappingType
	}
	source := NormalizeSourceValue(sourceValue)
	target := strings.TrimSpace(targetValue)
	if source == "" || target == "" {
		return nil, ErrInvalidMapping
	}
	now := time.Now()
	return &Mapping{
		MappingType: mappingType,
		SourceValue: source,
		TargetValue: target,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Key returns the lookup key of this mapping
func (m *Mapping) Key() MappingKey {
	return MappingKey{Type: m.MappingType, SourceValue: m.SourceValue}
}

// Update changes the target value and description and reactivates the mapping
func (m *Mapping) Update(targetValue, description string) error {
	target := strings.TrimSpace(targetValue)
	if target == "" {
		return ErrInvalidMapping
	}
	m.TargetValue = target
	m.Description = strings.TrimSpace(description)
	m.IsActive = true
	m.UpdatedAt = time.Now()
	return nil
}

// Deactivate excludes the mapping from resolution
func (m *Mapping) Deactivate() {
	m.IsActive = false
	m.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// MappingRepository Interface
// ---------------------------------------------------------------------------

// MappingFilter defines filter criteria for listing mappings
type MappingFilter struct {
	// MappingType filters by type (optional)
	MappingType *MappingType
	// IsActive filters by active flag (optional)
	IsActive *bool
	// Search matches source or target values (optional)
	Search string
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// MappingRepository is the durable mapping store
type MappingRepository interface {
	// FindActiveBySource finds the active mapping for key, ErrMappingNotFound otherwise
	FindActiveBySource(ctx context.Context, key MappingKey) (*Mapping, error)
	// FindBySource finds the mapping for key regardless of its active flag
	FindBySource(ctx context.Context, key MappingKey) (*Mapping, error)
	// FindAll lists mappings ordered by type and source value
	FindAll(ctx context.Context, filter MappingFilter) ([]Mapping, int64, error)
	// Save inserts or updates the mapping unique on (type, source value)
	Save(ctx context.Context, mapping *Mapping) error
}

// MappingCache is the read-through cache in front of the mapping store
type MappingCache interface {
	// Get returns the cached target value for key
	Get(key MappingKey) (string, bool)
	// Set caches the target value for key
	Set(key MappingKey, targetValue string)
	// Generation returns a counter that changes whenever key is invalidated
	Generation(key MappingKey) uint64
	// SetIfGeneration caches the value only if key's generation is still gen
	SetIfGeneration(key MappingKey, targetValue string, gen uint64) bool
	// Invalidate drops exactly one key
	Invalidate(key MappingKey)
	// Clear drops every key
	Clear()
}

// MappingInvalidationBroadcaster tells other instances that a mapping key changed
type MappingInvalidationBroadcaster interface {
	// Publish announces that key must be dropped from every cache
	Publish(ctx context.Context, key MappingKey) error
}
