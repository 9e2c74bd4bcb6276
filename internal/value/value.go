// Package value implements the tagged-variant Value grammar (§3) and its
// bit-exact textual encoding (§4.3) against the backend's typed field
// values.
package value

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Value is the closed set of typed values a record field may hold.
// Each concrete type below implements Value by way of an unexported
// marker method, so the variant set cannot be extended outside this
// package (type dispatch during encode/decode is exhaustive).
type Value interface {
	isValue()
}

type Null struct{}

func (Null) isValue() {}

type String string

func (String) isValue() {}

type Int64 int64

func (Int64) isValue() {}

// Decimal holds an arbitrary-precision decimal value, used for the
// "decimal" and "double" field types.
type Decimal struct{ D decimal.Decimal }

func (Decimal) isValue() {}

// Money holds a currency amount. It is decimal-backed like Decimal but
// kept distinct so encoders/decoders can special-case currency fields
// if the backend ever requires it (none currently do).
type Money struct{ D decimal.Decimal }

func (Money) isValue() {}

type Bool bool

func (Bool) isValue() {}

// DateTime is always normalized to UTC; textual form is ISO-8601 with
// a trailing "Z" (§4.3).
type DateTime struct{ T time.Time }

func (DateTime) isValue() {}

type Guid struct{ ID uuid.UUID }

func (Guid) isValue() {}

// Reference is a typed pointer to another record: (entity, id).
type Reference struct {
	Entity string
	ID     uuid.UUID
}

func (Reference) isValue() {}

type OptionSet int

func (OptionSet) isValue() {}

type MultiOptionSet []int

func (MultiOptionSet) isValue() {}

// PartyList is a list of activity-party references, each naming the
// target entity, used by activity recipient fields.
type PartyList []Reference

func (PartyList) isValue() {}

// NewDecimal constructs a Decimal from a float64 convenience value;
// callers with an authoritative decimal string should use
// decimal.Decimal directly via Decimal{D: ...} to avoid float rounding.
func NewDecimal(f float64) Decimal {
	return Decimal{D: decimal.NewFromFloat(f)}
}
