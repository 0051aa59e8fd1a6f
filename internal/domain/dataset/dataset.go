// Package dataset names the independently hosted datasets and owns the
// static table that maps every attribute field to exactly one of them.
package dataset

// ID identifies one of the closed set of datasets.
type ID string

// Dataset identifiers.
const (
	Survey  ID = "survey"
	Address ID = "address"
	Taxlot  ID = "taxlot"
)

// All returns every dataset in a stable order.
func All() []ID {
	return []ID{Survey, Address, Taxlot}
}

// IsValid checks if the id is one of the known datasets.
func (id ID) IsValid() bool {
	return id == Survey || id == Address || id == Taxlot
}

func (id ID) String() string { return string(id) }

// IsValidField reports whether name can be used as a field in a filter predicate:
// a letter or underscore followed by letters, digits or underscores.
func IsValidField(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && (i == 0 || !isDigit) {
			return false
		}
	}
	return true
}
