package tracker

import (
	"strconv"
	"time"
)

// --- Firestore REST wire types ---
//
// Minimal subset of the runQuery request/response shapes. Values use the
// tagged-union encoding of the REST API: exactly one of the *Value members
// is set, and integers travel as decimal strings.

type runQueryRequest struct {
	StructuredQuery structuredQuery `json:"structuredQuery"`
}

type structuredQuery struct {
	From    []collectionSelector `json:"from"`
	Where   *queryFilter         `json:"where,omitempty"`
	OrderBy []queryOrder         `json:"orderBy,omitempty"`
}

type collectionSelector struct {
	CollectionID string `json:"collectionId"`
}

type queryFilter struct {
	CompositeFilter *compositeFilter `json:"compositeFilter,omitempty"`
	FieldFilter     *fieldFilter     `json:"fieldFilter,omitempty"`
}

type compositeFilter struct {
	Op      string        `json:"op"`
	Filters []queryFilter `json:"filters"`
}

type fieldFilter struct {
	Field fieldReference `json:"field"`
	Op    string         `json:"op"`
	Value fsValue        `json:"value"`
}

type fieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type queryOrder struct {
	Field     fieldReference `json:"field"`
	Direction string         `json:"direction"`
}

type queryRow struct {
	Document *fsDocument `json:"document"`
	ReadTime string      `json:"readTime"`
}

type fsDocument struct {
	Name   string             `json:"name"`
	Fields map[string]fsValue `json:"fields"`
}

type fsValue struct {
	BooleanValue   *bool      `json:"booleanValue,omitempty"`
	IntegerValue   *string    `json:"integerValue,omitempty"`
	DoubleValue    *float64   `json:"doubleValue,omitempty"`
	TimestampValue *string    `json:"timestampValue,omitempty"`
	StringValue    *string    `json:"stringValue,omitempty"`
	MapValue       *fsMap     `json:"mapValue,omitempty"`
	ArrayValue     *fsArray   `json:"arrayValue,omitempty"`
	NullValue      *nullValue `json:"nullValue,omitempty"`
}

type fsMap struct {
	Fields map[string]fsValue `json:"fields"`
}

type fsArray struct {
	Values []fsValue `json:"values"`
}

// nullValue only exists so a "nullValue" key decodes without error; the
// payload is always JSON null.
type nullValue struct{}

func intValue(n int64) fsValue {
	s := strconv.FormatInt(n, 10)
	return fsValue{IntegerValue: &s}
}

func rangeQuery(collection, field string, startUnix, endUnix int64) runQueryRequest {
	return runQueryRequest{StructuredQuery: structuredQuery{
		From: []collectionSelector{{CollectionID: collection}},
		Where: &queryFilter{CompositeFilter: &compositeFilter{
			Op: "AND",
			Filters: []queryFilter{
				{FieldFilter: &fieldFilter{
					Field: fieldReference{FieldPath: field},
					Op:    "GREATER_THAN_OR_EQUAL",
					Value: intValue(startUnix),
				}},
				{FieldFilter: &fieldFilter{
					Field: fieldReference{FieldPath: field},
					Op:    "LESS_THAN",
					Value: intValue(endUnix),
				}},
			},
		}},
		OrderBy: []queryOrder{{
			Field:     fieldReference{FieldPath: field},
			Direction: "ASCENDING",
		}},
	}}
}

func collectionQuery(collection string) runQueryRequest {
	return runQueryRequest{StructuredQuery: structuredQuery{
		From: []collectionSelector{{CollectionID: collection}},
	}}
}

// --- value decoding ---

// decode flattens an fsValue into a plain Go value: bool, int64, float64,
// string, time.Time, map[string]any or []any. Unset and null values decode
// to nil so converters can treat them as absent.
func (v fsValue) decode() any {
	switch {
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.TimestampValue != nil:
		t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
		if err != nil {
			return nil
		}
		return t
	case v.StringValue != nil:
		return *v.StringValue
	case v.MapValue != nil:
		m := make(map[string]any, len(v.MapValue.Fields))
		for k, f := range v.MapValue.Fields {
			m[k] = f.decode()
		}
		return m
	case v.ArrayValue != nil:
		a := make([]any, 0, len(v.ArrayValue.Values))
		for _, f := range v.ArrayValue.Values {
			a = append(a, f.decode())
		}
		return a
	default:
		return nil
	}
}

// docFields flattens a document's field map in one pass.
func docFields(doc *fsDocument) fields {
	f := make(fields, len(doc.Fields))
	for k, v := range doc.Fields {
		f[k] = v.decode()
	}
	return f
}

// fields is a decoded document with forgiving accessors. Vendor documents
// drift over time, so a missing or oddly typed field yields a default
// instead of an error.
type fields map[string]any

func (f fields) int64Or(key string, def int64) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return def
	}
}

func (f fields) numberOr(key string, def float64) float64 {
	switch v := f[key].(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return def
	}
}

func (f fields) stringOr(key, def string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return def
}

func (f fields) optNumber(key string) *float64 {
	switch v := f[key].(type) {
	case int64:
		n := float64(v)
		return &n
	case float64:
		n := v
		return &n
	default:
		return nil
	}
}

// display renders any scalar field as text for description lines, the way
// the mobile app shows it. Missing fields stay nil so callers can skip the
// line entirely.
func (f fields) display(key string) *string {
	var s string
	switch v := f[key].(type) {
	case string:
		s = v
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return nil
	}
	return &s
}

// --- record converters ---

func sleepFromFields(f fields) SleepInterval {
	return SleepInterval{
		Start:           f.int64Or("start", 0),
		DurationSeconds: f.numberOr("duration", 0),
	}
}

func feedFromFields(f fields) FeedInterval {
	return FeedInterval{
		Start:        f.int64Or("start", 0),
		Mode:         f.stringOr("mode", ""),
		Type:         f.stringOr("type", ""),
		BottleType:   f.display("bottleType"),
		Amount:       f.optNumber("amount"),
		BottleAmount: f.optNumber("bottleAmount"),
		Units:        f.stringOr("units", ""),
		BottleUnits:  f.stringOr("bottleUnits", ""),
		LeftSeconds:  f.numberOr("leftDuration", 0),
		RightSeconds: f.numberOr("rightDuration", 0),
	}
}

func diaperFromFields(f fields) DiaperChange {
	return DiaperChange{
		Start:       f.int64Or("start", 0),
		Mode:        f.stringOr("mode", "unknown"),
		Color:       f.display("pooColor"),
		Consistency: f.display("pooConsistency"),
		Amount:      f.display("amount"),
	}
}

func growthFromFields(f fields) GrowthEntry {
	return GrowthEntry{
		Start:  f.int64Or("start", 0),
		Weight: f.optNumber("weight"),
		Height: f.optNumber("height"),
		Head:   f.optNumber("head"),
	}
}

func childFromDocument(doc *fsDocument) Child {
	f := docFields(doc)
	return Child{
		UID:       lastPathSegment(doc.Name),
		Name:      f.stringOr("name", ""),
		Birthdate: f.stringOr("birthdate", ""),
	}
}

func lastPathSegment(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
