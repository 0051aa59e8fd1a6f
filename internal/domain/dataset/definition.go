package dataset

import (
	"fmt"
	"slices"
)

// Definition describes how one dataset is queried: its out fields, the
// subset searched by fuzzy matching, and its baseline filter expression.
type Definition struct {
	ID         ID
	Fields     []string
	Searchable []string
	Baseline   string
}

// Validate checks that the searchable fields are a subset of the fields.
func (d Definition) Validate() error {
	if !d.ID.IsValid() {
		return fmt.Errorf("unknown dataset %q", d.ID)
	}
	for _, f := range d.Fields {
		if !IsValidField(f) {
			return fmt.Errorf("dataset %s: invalid field name %q", d.ID, f)
		}
	}
	for _, f := range d.Searchable {
		if !slices.Contains(d.Fields, f) {
			return fmt.Errorf("dataset %s: searchable field %q is not an out field", d.ID, f)
		}
	}
	return nil
}

// SearchFields returns the searchable fields, or all fields when none are set.
func (d Definition) SearchFields() []string {
	if len(d.Searchable) == 0 {
		return slices.Clone(d.Fields)
	}
	return slices.Clone(d.Searchable)
}

// Default baseline filters of the county layers.
const (
	SurveyBaseline  = "cs NOT IN ('2787','2424','1391','4188')"
	AddressBaseline = "status = 'Current'"
)

// DefaultDefinitions returns the definitions of the county layers.
func DefaultDefinitions() map[ID]Definition {
	fields := DefaultFields()
	return map[ID]Definition{
		Survey: {
			ID:     Survey,
			Fields: fields[Survey],
			Searchable: []string{
				"cs", "prepared_for", "prepared_by", "subdivision", "identification", "trsqq", "rec_y",
			},
			Baseline: SurveyBaseline,
		},
		Address: {
			ID:         Address,
			Fields:     fields[Address],
			Searchable: []string{"full_address2"},
			Baseline:   AddressBaseline,
		},
		Taxlot: {
			ID:         Taxlot,
			Fields:     fields[Taxlot],
			Searchable: []string{"MAPTAXLOT", "OWNER_NAME", "ACCOUNT"},
		},
	}
}
