// Package tour loads walking tours: tour metadata, ordered stops with their
// narration scripts, and the walking route.
package tour

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"odysseywalk/pkg/geo"
	"odysseywalk/pkg/model"
)

// walkingSpeed is used for duration estimates when a tour omits one (m/s).
const walkingSpeed = 1.25

var (
	// ErrNoStops is returned for a tour without any stop.
	ErrNoStops = errors.New("tour has no stops")
	// ErrDuplicateStop is returned when two stops share an id.
	ErrDuplicateStop = errors.New("duplicate stop id")
)

//go:embed data/demo.json
var demoFS embed.FS

// Bundle is a loaded tour with its stops in tour order.
type Bundle struct {
	Tour model.Tour
	POIs []model.POI

	index map[string]int
}

type fileFormat struct {
	Tour         model.Tour      `json:"tour"`
	POIs         []model.POI     `json:"pois"`
	RouteGeoJSON json.RawMessage `json:"route_geojson,omitempty"` // inline object or a path relative to the tour file
}

// Load reads a tour file.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tour: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Demo returns the built-in sample tour.
func Demo() (*Bundle, error) {
	data, err := demoFS.ReadFile("data/demo.json")
	if err != nil {
		return nil, err
	}
	return Parse(data, "")
}

// Parse decodes and validates a tour document. baseDir resolves a route_geojson
// file reference.
func Parse(data []byte, baseDir string) (*Bundle, error) {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tour: %w", err)
	}
	if f.Tour.ID == "" {
		return nil, errors.New("tour id is required")
	}
	if len(f.POIs) == 0 {
		return nil, ErrNoStops
	}

	b := &Bundle{Tour: f.Tour, POIs: slices.Clone(f.POIs), index: make(map[string]int, len(f.POIs))}

	// Stable sort keeps file order as the tie-breaker
	slices.SortStableFunc(b.POIs, func(x, y model.POI) int { return x.OrderIndex - y.OrderIndex })

	ids := make([]string, 0, len(b.POIs))
	for i := range b.POIs {
		p := &b.POIs[i]
		if p.ID == "" {
			return nil, fmt.Errorf("stop %d has no id", i)
		}
		if _, dup := b.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStop, p.ID)
		}
		if !geo.Valid(p.Position()) {
			return nil, fmt.Errorf("stop %s has invalid coordinates (%v, %v)", p.ID, p.Lat, p.Lng)
		}
		p.TourID = b.Tour.ID
		if p.ScriptVersion == "" {
			p.ScriptVersion = scriptVersion(p.Script)
		}
		b.index[p.ID] = i
		ids = append(ids, p.ID)
	}
	b.Tour.POIIDs = ids

	route, err := resolveRoute(f, baseDir)
	if err != nil {
		return nil, err
	}
	if len(route) == 0 {
		// Without a drawn route the stops themselves form the path
		for _, p := range b.POIs {
			route = append(route, p.Position())
		}
	}
	b.Tour.RoutePoints = route

	if b.Tour.DefaultVoiceStyle == "" {
		b.Tour.DefaultVoiceStyle = model.StyleFriendly
	}
	b.Tour.DefaultVoiceStyle = model.ParseVoiceStyle(string(b.Tour.DefaultVoiceStyle))
	b.Tour.DefaultLang = model.ParseLang(string(b.Tour.DefaultLang))
	if b.Tour.EstimatedMinutes == 0 {
		b.Tour.EstimatedMinutes = geo.EstimateWalkMinutes(route, walkingSpeed)
	}
	return b, nil
}

func resolveRoute(f fileFormat, baseDir string) ([]model.LatLng, error) {
	if len(f.Tour.RoutePoints) > 0 {
		for _, p := range f.Tour.RoutePoints {
			if !geo.Valid(p) {
				return nil, fmt.Errorf("route has invalid point (%v, %v)", p.Lat, p.Lng)
			}
		}
		return f.Tour.RoutePoints, nil
	}
	raw := strings.TrimSpace(string(f.RouteGeoJSON))
	if raw == "" || raw == "null" {
		return nil, nil
	}

	doc := []byte(raw)
	var ref string
	if json.Unmarshal(doc, &ref) == nil {
		data, err := os.ReadFile(filepath.Join(baseDir, ref))
		if err != nil {
			return nil, fmt.Errorf("failed to read route: %w", err)
		}
		doc = data
	}
	return geo.RouteFromGeoJSON(doc)
}

// scriptVersion fingerprints the script so cached audio is re-synthesized
// when its text changes.
func scriptVersion(s model.Script) string {
	data, _ := json.Marshal(s)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}

// POI looks a stop up by id.
func (b *Bundle) POI(id string) (model.POI, bool) {
	i, ok := b.index[id]
	if !ok {
		return model.POI{}, false
	}
	return b.POIs[i], true
}

// NextUnvisited returns up to n stops not in visited, in tour order.
func (b *Bundle) NextUnvisited(visited *model.VisitedSet, n int) []model.POI {
	var out []model.POI
	for _, p := range b.POIs {
		if len(out) >= n {
			break
		}
		if !visited.Contains(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// IndexOf returns the tour position of a stop, or -1.
func (b *Bundle) IndexOf(id string) int {
	if i, ok := b.index[id]; ok {
		return i
	}
	return -1
}

// Bounds returns the bounding box of the route.
func (b *Bundle) Bounds() geo.Bounds {
	return geo.RouteBounds(b.Tour.RoutePoints)
}
