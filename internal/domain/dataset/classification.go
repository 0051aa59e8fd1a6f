package dataset

import (
	"fmt"
	"slices"
)

// Classification maps field name -> owning dataset.
// Field names are case-sensitive; partitions are disjoint.
type Classification struct {
	owner  map[string]ID
	fields map[ID][]string
}

// NewClassification validates per-dataset field partitions and builds the table.
// A field name appearing under two datasets is rejected.
func NewClassification(partitions map[ID][]string) (Classification, error) {
	c := Classification{
		owner:  make(map[string]ID),
		fields: make(map[ID][]string, len(partitions)),
	}
	// Iterate in a fixed order so conflict errors are reproducible.
	for _, id := range All() {
		names, ok := partitions[id]
		if !ok {
			continue
		}
		for _, name := range names {
			if !IsValidField(name) {
				return Classification{}, fmt.Errorf("dataset %s: invalid field name %q", id, name)
			}
			if prev, dup := c.owner[name]; dup {
				if prev == id {
					return Classification{}, fmt.Errorf("dataset %s: duplicate field %q", id, name)
				}
				return Classification{}, fmt.Errorf("field %q classified under both %s and %s", name, prev, id)
			}
			c.owner[name] = id
		}
		c.fields[id] = slices.Clone(names)
	}
	for id := range partitions {
		if !id.IsValid() {
			return Classification{}, fmt.Errorf("unknown dataset %q", id)
		}
	}
	return c, nil
}

// MustClassification is NewClassification that panics on error.
func MustClassification(partitions map[ID][]string) Classification {
	c, err := NewClassification(partitions)
	if err != nil {
		panic(err)
	}
	return c
}

// Owner returns the dataset that owns field.
func (c Classification) Owner(field string) (ID, bool) {
	id, ok := c.owner[field]
	return id, ok
}

// Fields returns the fields classified under id.
func (c Classification) Fields(id ID) []string {
	return slices.Clone(c.fields[id])
}

// Len returns the number of classified fields.
func (c Classification) Len() int { return len(c.owner) }

// DefaultClassification returns the table of the Crook County survey, address
// point and taxlot layers.
func DefaultClassification() Classification {
	return MustClassification(DefaultFields())
}

// DefaultFields returns the out fields of each dataset's layer.
func DefaultFields() map[ID][]string {
	return map[ID][]string{
		Survey: {
			"cs", "image", "rec_y", "prepared_for", "trsqq",
			"prepared_by", "subdivision", "type", "identification", "pp",
		},
		Address: {"full_address2", "maptaxlot"},
		Taxlot: {
			"MAPTAXLOT", "OWNER_NAME", "ZONE", "ACCOUNT",
			"PATS_LINK", "TAX_MAP_LINK", "TAX_CARD_LINK",
		},
	}
}
