package tour

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odysseywalk/pkg/model"
)

func TestDemo(t *testing.T) {
	b, err := Demo()
	require.NoError(t, err)

	assert.Equal(t, "paris-latin-quarter", b.Tour.ID)
	assert.Equal(t, []string{"pantheon", "sorbonne", "cluny", "saint-michel"}, b.Tour.POIIDs)
	assert.Len(t, b.Tour.RoutePoints, 6)
	assert.Greater(t, b.Tour.EstimatedMinutes, 0)

	p, ok := b.POI("cluny")
	require.True(t, ok)
	assert.Equal(t, "paris-latin-quarter", p.TourID)
	assert.Equal(t, model.ScriptSingle, p.Script.Kind)
	assert.NotEmpty(t, p.ScriptVersion)

	bounds := b.Bounds()
	assert.Less(t, bounds.South, bounds.North)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		check   func(t *testing.T, b *Bundle)
	}{
		{
			name: "order index sorts with file order as tie-breaker",
			doc: `{"tour":{"id":"t"},"pois":[
				{"poi_id":"c","lat":1,"lng":1,"order_index":2,"script":"c"},
				{"poi_id":"a","lat":1,"lng":1,"order_index":1,"script":"a"},
				{"poi_id":"b","lat":1,"lng":1,"order_index":1,"script":"b"}]}`,
			check: func(t *testing.T, b *Bundle) {
				assert.Equal(t, []string{"a", "b", "c"}, b.Tour.POIIDs)
				assert.Equal(t, 2, b.IndexOf("c"))
				assert.Equal(t, -1, b.IndexOf("zz"))
				// Route falls back to the stops
				assert.Len(t, b.Tour.RoutePoints, 3)
				assert.Equal(t, model.StyleFriendly, b.Tour.DefaultVoiceStyle)
				assert.Equal(t, model.LangEN, b.Tour.DefaultLang)
			},
		},
		{
			name:    "no stops",
			doc:     `{"tour":{"id":"t"},"pois":[]}`,
			wantErr: ErrNoStops,
		},
		{
			name:    "duplicate ids",
			doc:     `{"tour":{"id":"t"},"pois":[{"poi_id":"a","lat":1,"lng":1},{"poi_id":"a","lat":2,"lng":2}]}`,
			wantErr: ErrDuplicateStop,
		},
		{
			name: "explicit script version kept",
			doc:  `{"tour":{"id":"t","default_lang":"fr"},"pois":[{"poi_id":"a","lat":1,"lng":1,"script":"x","script_version":"7"}]}`,
			check: func(t *testing.T, b *Bundle) {
				assert.Equal(t, "7", b.POIs[0].ScriptVersion)
				assert.Equal(t, model.LangFR, b.Tour.DefaultLang)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Parse([]byte(tt.doc), "")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			tt.check(t, b)
		})
	}

	for _, doc := range []string{
		`{"tour":{},"pois":[{"poi_id":"a","lat":1,"lng":1}]}`,
		`{"tour":{"id":"t"},"pois":[{"poi_id":"a","lat":95,"lng":1}]}`,
		`{"tour":{"id":"t"},"pois":[{"lat":1,"lng":1}]}`,
		`not json`,
	} {
		_, err := Parse([]byte(doc), "")
		assert.Error(t, err, doc)
	}
}

func TestScriptVersionTracksContent(t *testing.T) {
	a := scriptVersion(model.SingleScript("hello"))
	b := scriptVersion(model.SingleScript("hello"))
	c := scriptVersion(model.SingleScript("hello, world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLoad_RouteFileReference(t *testing.T) {
	dir := t.TempDir()
	route := `{"type":"LineString","coordinates":[[2.0,48.0],[2.001,48.001]]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "route.geojson"), []byte(route), 0o644))
	doc := `{"tour":{"id":"t"},"pois":[{"poi_id":"a","lat":48,"lng":2,"script":"x"}],"route_geojson":"route.geojson"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tour.json"), []byte(doc), 0o644))

	b, err := Load(filepath.Join(dir, "tour.json"))
	require.NoError(t, err)
	assert.Equal(t, []model.LatLng{{Lat: 48, Lng: 2}, {Lat: 48.001, Lng: 2.001}}, b.Tour.RoutePoints)
}

func TestNextUnvisited(t *testing.T) {
	b, err := Demo()
	require.NoError(t, err)

	visited := model.NewVisitedSet("pantheon", "cluny")
	next := b.NextUnvisited(visited, 2)
	require.Len(t, next, 2)
	assert.Equal(t, "sorbonne", next[0].ID)
	assert.Equal(t, "saint-michel", next[1].ID)

	assert.Len(t, b.NextUnvisited(nil, 10), 4)
}
