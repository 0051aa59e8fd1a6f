package feature

import (
	"slices"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/record"
)

func taxlot(id string, g geom.T) Feature {
	return Feature{
		Geometry:   g,
		Attributes: record.Reconstruct(dataset.Taxlot, map[string]string{"MAPTAXLOT": id}),
	}
}

func TestSet_FirstGeometry(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	})
	s := Set{taxlot("1", nil), taxlot("2", geom.NewPolygon(geom.XY)), taxlot("3", poly)}

	g, ok := s.FirstGeometry()
	if !ok {
		t.Fatal("expected a geometry")
	}
	if g != poly {
		t.Errorf("FirstGeometry returned %v, want third feature's polygon", g)
	}
}

func TestSet_FirstGeometry_None(t *testing.T) {
	s := Set{taxlot("1", nil)}
	if _, ok := s.FirstGeometry(); ok {
		t.Error("expected no geometry")
	}
	if _, ok := Set(nil).FirstGeometry(); ok {
		t.Error("expected no geometry for empty set")
	}
}

func TestSet_Values_DistinctInOrder(t *testing.T) {
	s := Set{taxlot("B", nil), taxlot("A", nil), taxlot("B", nil), taxlot("", nil)}
	got := s.Values("MAPTAXLOT")
	if !slices.Equal(got, []string{"B", "A"}) {
		t.Errorf("Values = %v", got)
	}
}

func TestQuery_Defaults(t *testing.T) {
	var q Query
	if q.WhereClause() != "1=1" {
		t.Errorf("WhereClause = %q", q.WhereClause())
	}
	if !slices.Equal(q.Fields(), []string{"*"}) {
		t.Errorf("Fields = %v", q.Fields())
	}

	q = Query{Where: "cs = '1'", OutFields: []string{"cs"}}
	if q.WhereClause() != "cs = '1'" || !slices.Equal(q.Fields(), []string{"cs"}) {
		t.Errorf("unexpected query rendering: %q %v", q.WhereClause(), q.Fields())
	}
}
