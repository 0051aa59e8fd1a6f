package render

import (
	"regexp"

	"github.com/crookcounty/surveysearch/internal/domain/record"
)

// LayerID names a graphics layer.
type LayerID string

// Graphics layers.
const (
	// Results holds survey graphics.
	Results LayerID = "results"
	// Highlight holds taxlot outlines.
	Highlight LayerID = "highlight"
)

// Layers returns the graphics layers in draw order.
func Layers() []LayerID { return []LayerID{Highlight, Results} }

// Color is an RGBA color; alpha is in [0, 1].
type Color [4]float64

// Outline is the stroke of a fill symbol.
type Outline struct {
	Color Color   `json:"color"`
	Width float64 `json:"width"`
	Cap   string  `json:"cap,omitempty"`
	Join  string  `json:"join,omitempty"`
}

// Symbol is a simple fill symbol.
type Symbol struct {
	Type    string  `json:"type"`
	Style   string  `json:"style"`
	Color   Color   `json:"color"`
	Outline Outline `json:"outline"`
}

// PopupTemplate renders popup text with {field} placeholders.
type PopupTemplate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render substitutes record values into the template. Missing fields render
// as empty text.
func (p PopupTemplate) Render(r record.Record) (title, content string) {
	sub := func(tmpl string) string {
		return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
			v, _ := r.Value(m[1 : len(m)-1])
			return v
		})
	}
	return sub(p.Title), sub(p.Content)
}

// Style is what a render call needs besides the features: target layer,
// symbol and popup template.
type Style struct {
	Layer  LayerID       `json:"layer"`
	Symbol Symbol        `json:"symbol"`
	Popup  PopupTemplate `json:"popup"`
}

// SurveyStyle draws surveys as translucent blue fills on the results layer.
func SurveyStyle() Style {
	return Style{
		Layer: Results,
		Symbol: Symbol{
			Type:    "simple-fill",
			Style:   "solid",
			Color:   Color{20, 130, 200, 0.5},
			Outline: Outline{Color: Color{255, 255, 255, 1}, Width: 0.5},
		},
		Popup: PopupTemplate{
			Title: "Survey {cs}",
			Content: "<strong>PDF:</strong> <a href={image}>View</a> <br /> " +
				"<strong>Prepared For:</strong> {prepared_for} <br /> " +
				"<strong>Description:</strong> {identification} <br /> " +
				"<strong>Year:</strong> {rec_y}",
		},
	}
}

// TaxlotStyle outlines taxlots on the highlight layer.
func TaxlotStyle() Style {
	return Style{
		Layer: Highlight,
		Symbol: Symbol{
			Type:  "simple-fill",
			Style: "solid",
			Color: Color{0, 32, 194, 0},
			Outline: Outline{
				Color: Color{20, 199, 151, 1},
				Width: 1,
				Cap:   "round",
				Join:  "round",
			},
		},
		Popup: PopupTemplate{
			Title: "{MAPTAXLOT}",
			Content: "Owner Name: {OWNER_NAME} <br /> Zone: {ZONE} <br /> Account: {ACCOUNT} <br /> " +
				"PATS Link: <a href={PATS_LINK}>PATS Link</a> <br /> " +
				"Tax Map Link: <a href={TAX_MAP_LINK}>Tax Map Link</a> <br /> " +
				"Tax Card Link: <a href={TAX_CARD_LINK}>Tax Card Link</a>",
		},
	}
}
