// Package record holds attribute records and the immutable snapshots the
// attribute cache serves.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
)

// ErrUnexpectedShape signals an attribute value that is not a scalar.
var ErrUnexpectedShape = errors.New("unexpected attribute shape")

// Record is a closed field -> scalar mapping owned by one dataset.
// A field with a null value is absent.
type Record struct {
	dataset dataset.ID
	values  map[string]string
}

// New validates raw attributes against the dataset's known fields.
// Unknown fields are dropped; non-scalar values reject the whole record.
// An empty known list accepts every field.
func New(ds dataset.ID, attrs map[string]any, known []string) (Record, error) {
	if !ds.IsValid() {
		return Record{}, fmt.Errorf("unknown dataset %q", ds)
	}
	values := make(map[string]string, len(attrs))
	for name, raw := range attrs {
		if len(known) > 0 && !slices.Contains(known, name) {
			continue
		}
		v, present, err := scalar(raw)
		if err != nil {
			return Record{}, fmt.Errorf("field %q: %w", name, err)
		}
		if present {
			values[name] = v
		}
	}
	return Record{dataset: ds, values: values}, nil
}

// Reconstruct rebuilds a record from already validated values (storage, tests).
func Reconstruct(ds dataset.ID, values map[string]string) Record {
	return Record{dataset: ds, values: maps.Clone(values)}
}

// Dataset returns the owning dataset.
func (r Record) Dataset() dataset.ID { return r.dataset }

// Value returns the value of field and whether it is present.
func (r Record) Value(field string) (string, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields returns the present field names, sorted.
func (r Record) Fields() []string {
	return slices.Sorted(maps.Keys(r.values))
}

// Values returns a copy of the field values.
func (r Record) Values() map[string]string { return maps.Clone(r.values) }

// Len returns the number of present fields.
func (r Record) Len() int { return len(r.values) }

func scalar(raw any) (string, bool, error) {
	switch v := raw.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true, nil
	case int:
		return strconv.Itoa(v), true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	case json.Number:
		return v.String(), true, nil
	default:
		return "", false, fmt.Errorf("%w: %T", ErrUnexpectedShape, raw)
	}
}
