package render

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/crookcounty/surveysearch/internal/domain/feature"
)

// Graphic is one drawn feature.
type Graphic struct {
	Geometry     geom.T
	Attributes   map[string]string
	Symbol       Symbol
	PopupTitle   string
	PopupContent string
}

// NewGraphic converts a feature into a graphic with the given style.
func NewGraphic(f feature.Feature, style Style) Graphic {
	title, content := style.Popup.Render(f.Attributes)
	return Graphic{
		Geometry:     f.Geometry,
		Attributes:   f.Attributes.Values(),
		Symbol:       style.Symbol,
		PopupTitle:   title,
		PopupContent: content,
	}
}

// Layer is an ordered collection of graphics. Not safe for concurrent use.
type Layer struct {
	id       LayerID
	graphics []Graphic
}

// NewLayer creates an empty layer.
func NewLayer(id LayerID) *Layer { return &Layer{id: id} }

// ID returns the layer name.
func (l *Layer) ID() LayerID { return l.id }

// Add appends graphics.
func (l *Layer) Add(gs ...Graphic) { l.graphics = append(l.graphics, gs...) }

// Clear removes every graphic.
func (l *Layer) Clear() { l.graphics = nil }

// Len returns the number of graphics.
func (l *Layer) Len() int { return len(l.graphics) }

// Graphics returns a copy of the graphics.
func (l *Layer) Graphics() []Graphic { return slices.Clone(l.graphics) }

// FeatureCollection encodes graphics as GeoJSON. Popup text and the symbol
// travel as feature properties.
func FeatureCollection(gs []Graphic) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(gs))}
	for i, g := range gs {
		props := make(map[string]interface{}, len(g.Attributes)+3)
		for k, v := range g.Attributes {
			props[k] = v
		}
		props["popup_title"] = g.PopupTitle
		props["popup_content"] = g.PopupContent
		props["symbol"] = g.Symbol
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(i),
			Geometry:   g.Geometry,
			Properties: props,
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	return data, nil
}
