package mode

import "github.com/crookcounty/surveysearch/internal/domain/dataset"

// Mode is the search mode selected by the user. It fixes the dataset the
// search starts from and the chain that resolves surveys from it.
type Mode string

// Search mode constants.
const (
	// Surveys searches survey attributes directly.
	Surveys Mode = "surveys"
	// Addresses resolves addresses to taxlots, then intersecting surveys.
	Addresses Mode = "addresses"
	// Maptaxlots resolves taxlots, then intersecting surveys.
	Maptaxlots Mode = "maptaxlots"
)

// All returns the supported modes.
func All() []Mode { return []Mode{Surveys, Addresses, Maptaxlots} }

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Surveys || m == Addresses || m == Maptaxlots
}

// Primary returns the dataset whose attributes are fuzzy-searched.
func (m Mode) Primary() dataset.ID {
	switch m {
	case Addresses:
		return dataset.Address
	case Maptaxlots:
		return dataset.Taxlot
	default:
		return dataset.Survey
	}
}

// Datasets returns the datasets whose predicates the mode consumes.
func (m Mode) Datasets() []dataset.ID {
	switch m {
	case Addresses:
		return []dataset.ID{dataset.Address, dataset.Survey}
	case Maptaxlots:
		return []dataset.ID{dataset.Taxlot, dataset.Survey}
	case Surveys:
		return []dataset.ID{dataset.Survey}
	default:
		return nil
	}
}

func (m Mode) String() string { return string(m) }
