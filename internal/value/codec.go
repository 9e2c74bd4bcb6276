package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldType mirrors schema.FieldType's underlying string values. It is
// declared independently here (rather than imported) so that this
// package can encode/decode without depending on the schema package,
// which itself depends on value for Record field values; schema.FieldType
// values convert directly via value.FieldType(fd.Type).
type FieldType string

const (
	TypeString         FieldType = "string"
	TypeInt            FieldType = "int"
	TypeBigInt         FieldType = "bigint"
	TypeDecimal        FieldType = "decimal"
	TypeMoney          FieldType = "money"
	TypeDouble         FieldType = "double"
	TypeBoolean        FieldType = "boolean"
	TypeDateTime       FieldType = "datetime"
	TypeGuid           FieldType = "guid"
	TypeReference      FieldType = "reference"
	TypeOptionSet      FieldType = "optionset"
	TypeMultiOptionSet FieldType = "multi-optionset"
	TypeState          FieldType = "state"
	TypeStatus         FieldType = "status"
	TypePartyList      FieldType = "partylist"
	TypeMemo           FieldType = "memo"
)

// AmbiguousError reports §4.3's TypeAmbiguous condition: a reference
// with a non-empty GUID but no lookupentity attribute, and no schema
// field metadata to disambiguate it.
type AmbiguousError struct {
	Field string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("value: field %q: reference has no lookupentity attribute and is not declared as a reference in the schema", e.Field)
}

// Encoded is the textual representation of one field value plus the
// attributes the archive writer must place on the <field> element.
type Encoded struct {
	Text         string
	LookupEntity string // set only for Reference
	IsNull       bool
}

// Encode converts a Value to its textual archive representation per
// the table in §4.3. The encoding is bit-exact: booleans are always
// "True"/"False", decimals use invariant-culture formatting, and
// datetimes are always UTC with a trailing "Z".
func Encode(v Value) (Encoded, error) {
	switch t := v.(type) {
	case Null, nil:
		return Encoded{IsNull: true}, nil
	case Bool:
		if t {
			return Encoded{Text: "True"}, nil
		}
		return Encoded{Text: "False"}, nil
	case Int64:
		return Encoded{Text: strconv.FormatInt(int64(t), 10)}, nil
	case Decimal:
		return Encoded{Text: t.D.String()}, nil
	case Money:
		return Encoded{Text: t.D.String()}, nil
	case DateTime:
		return Encoded{Text: t.T.UTC().Format(time.RFC3339)}, nil
	case Guid:
		return Encoded{Text: t.ID.String()}, nil
	case Reference:
		return Encoded{Text: t.ID.String(), LookupEntity: t.Entity}, nil
	case OptionSet:
		return Encoded{Text: strconv.Itoa(int(t))}, nil
	case MultiOptionSet:
		parts := make([]string, len(t))
		for i, v := range t {
			parts[i] = strconv.Itoa(v)
		}
		return Encoded{Text: strings.Join(parts, ";")}, nil
	case String:
		return Encoded{Text: string(t)}, nil
	case PartyList:
		// PartyList is encoded as a sequence of <activityparty> elements
		// by the archive writer, which iterates the slice directly;
		// Encode is not called per-party for this variant.
		return Encoded{}, fmt.Errorf("value: PartyList must be encoded element-by-element, not via Encode")
	default:
		return Encoded{}, fmt.Errorf("value: unknown variant %T", v)
	}
}

// Decode converts a field's textual archive representation back into a
// Value, given the field's declared type and any lookupentity
// attribute present on the element. Decoding is permissive on
// whitespace and on boolean casing.
func Decode(fieldName string, fieldType FieldType, text string, lookupEntity string, isNull bool) (Value, error) {
	if isNull {
		return Null{}, nil
	}
	text = strings.TrimSpace(text)

	switch fieldType {
	case TypeBoolean:
		switch strings.ToLower(text) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		default:
			return nil, fmt.Errorf("value: field %q: invalid boolean %q", fieldName, text)
		}
	case TypeInt, TypeBigInt, TypeState, TypeStatus:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid integer %q: %w", fieldName, text, err)
		}
		return Int64(n), nil
	case TypeDecimal, TypeDouble:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid decimal %q: %w", fieldName, text, err)
		}
		return Decimal{D: d}, nil
	case TypeMoney:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid money %q: %w", fieldName, text, err)
		}
		return Money{D: d}, nil
	case TypeDateTime:
		t, err := time.Parse(time.RFC3339, text)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid datetime %q: %w", fieldName, text, err)
		}
		return DateTime{T: t.UTC()}, nil
	case TypeGuid:
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid guid %q: %w", fieldName, text, err)
		}
		return Guid{ID: id}, nil
	case TypeReference:
		if lookupEntity == "" {
			if text == "" {
				return Null{}, nil
			}
			return nil, &AmbiguousError{Field: fieldName}
		}
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid reference guid %q: %w", fieldName, text, err)
		}
		return Reference{Entity: lookupEntity, ID: id}, nil
	case TypeOptionSet:
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("value: field %q: invalid optionset %q: %w", fieldName, text, err)
		}
		return OptionSet(n), nil
	case TypeMultiOptionSet:
		if text == "" {
			return MultiOptionSet(nil), nil
		}
		parts := strings.Split(text, ";")
		out := make(MultiOptionSet, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("value: field %q: invalid multi-optionset member %q: %w", fieldName, p, err)
			}
			out = append(out, n)
		}
		return out, nil
	case TypeMemo, TypeString:
		return String(text), nil
	case TypePartyList:
		// Decoded by the archive reader, which assembles the
		// PartyList from multiple <activityparty> child elements.
		return nil, fmt.Errorf("value: field %q: partylist must be decoded from its activityparty children, not via Decode", fieldName)
	default:
		return String(text), nil
	}
}
