// Package geometry turns a GeoJSON feature collection of territory outlines
// into normalized polygons and a territory adjacency graph.
//
// Compute is pure: it never touches game state, so callers can run it on
// every load and discard the result when the source is malformed.
package geometry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoRegions is returned when the source parses but yields no labeled ring.
var ErrNoRegions = errors.New("geometry: no labeled regions")

// closeTolerance2 is the squared distance under which an open ring's
// endpoints are considered the same point.
const closeTolerance2 = 0.12 * 0.12

// geoScale quantizes geographic coordinates to 1e-5 degrees for vertex matching.
const geoScale = 100000

// simpleScale matches simple-mode vertices on whole canvas units, so edges
// that differ only in the rounded decimal still meet.
const simpleScale = 1

// minSharedVertices is the number of common vertices two regions need to be
// neighbors. A single shared corner does not count.
const minSharedVertices = 2

// Point is an output vertex: [lat, lng] in geographic mode, [y, x] in simple mode.
type Point [2]float64

// Options controls normalization and id derivation.
type Options struct {
	// Geographic passes coordinates through as [lat, lng].
	// Otherwise the bounding box is rescaled into Width x Height.
	Geographic bool
	Width      float64
	Height     float64
	IDPrefix   string
}

// Region is one computed territory outline.
type Region struct {
	ID        string
	Label     string
	Polygon   []Point
	Neighbors []string
}

type xy struct{ x, y float64 }

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Geometry   *rawGeometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Compute parses raw GeoJSON and returns regions sorted by id, each with a
// closed polygon and a sorted, symmetric neighbor list.
func Compute(raw []byte, opts Options) ([]Region, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fc featureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("geometry: decoding feature collection: %w", err)
	}

	labeled := make(map[string][]xy)
	var order []string
	var unlabeled [][]xy

	for _, f := range fc.Features {
		ring := outerRing(f.Geometry)
		if ring == nil {
			continue
		}
		if text, ok := featureLabel(f.Properties); ok {
			if _, seen := labeled[text]; !seen {
				order = append(order, text)
			}
			labeled[text] = ring
			continue
		}
		unlabeled = append(unlabeled, ring)
	}

	// Unlabeled outlines get their label from a point feature inside them.
	// Nested outlines are common, so the smallest containing one wins.
	for _, f := range fc.Features {
		if f.Geometry == nil || f.Geometry.Type != "Point" {
			continue
		}
		text, ok := featureLabel(f.Properties)
		if !ok {
			continue
		}
		if _, done := labeled[text]; done {
			continue
		}
		var pt []float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &pt); err != nil || len(pt) < 2 {
			continue
		}
		if ring := smallestContaining(xy{pt[0], pt[1]}, unlabeled); ring != nil {
			labeled[text] = ring
			order = append(order, text)
		}
	}

	if len(labeled) == 0 {
		return nil, ErrNoRegions
	}

	normalize := normalizer(labeled, opts)
	scale := float64(simpleScale)
	if opts.Geographic {
		scale = geoScale
	}

	regions := make([]Region, 0, len(labeled))
	vertices := make(map[string]map[[2]int64]struct{}, len(labeled))
	for _, text := range order {
		ring := labeled[text]
		pts := make([]Point, 0, len(ring)+1)
		for _, p := range ring {
			pts = append(pts, normalize(p))
		}
		pts = cleanRing(pts)

		id := opts.IDPrefix + text
		set := make(map[[2]int64]struct{}, len(pts))
		for _, p := range pts {
			set[[2]int64{int64(math.Round(p[1] * scale)), int64(math.Round(p[0] * scale))}] = struct{}{}
		}
		vertices[id] = set
		regions = append(regions, Region{ID: id, Label: text, Polygon: pts, Neighbors: []string{}})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })

	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if shared(vertices[regions[i].ID], vertices[regions[j].ID]) >= minSharedVertices {
				regions[i].Neighbors = append(regions[i].Neighbors, regions[j].ID)
				regions[j].Neighbors = append(regions[j].Neighbors, regions[i].ID)
			}
		}
	}
	for i := range regions {
		sort.Strings(regions[i].Neighbors)
	}
	return regions, nil
}

func featureLabel(props map[string]any) (string, bool) {
	switch v := props["Text"].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	}
	return "", false
}

// outerRing extracts a closed outer ring from a Polygon or a legacy
// LineString outline. Nil means the geometry cannot describe a region.
func outerRing(g *rawGeometry) []xy {
	if g == nil {
		return nil
	}
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 {
			return nil
		}
		ring := toXY(rings[0])
		if len(ring) < 4 {
			return nil
		}
		if first, last := ring[0], ring[len(ring)-1]; first != last {
			// A polygon ring is closed by definition even when the file omits it.
			ring = append(ring, first)
		}
		return ring
	case "LineString":
		var coords [][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil
		}
		ring := toXY(coords)
		if len(ring) < 4 {
			return nil
		}
		if first, last := ring[0], ring[len(ring)-1]; first != last {
			dx, dy := first.x-last.x, first.y-last.y
			if dx*dx+dy*dy > closeTolerance2 {
				return nil
			}
			ring = append(ring, first)
		}
		return ring
	}
	return nil
}

func toXY(coords [][]float64) []xy {
	out := make([]xy, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		out = append(out, xy{c[0], c[1]})
	}
	return out
}

func normalizer(labeled map[string][]xy, opts Options) func(xy) Point {
	if opts.Geographic {
		// GeoJSON is [lng, lat]; map clients want [lat, lng].
		return func(p xy) Point { return Point{p.y, p.x} }
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, ring := range labeled {
		for _, p := range ring {
			minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
			minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
		}
	}
	return func(p xy) Point {
		var nx, ny float64
		if maxX != minX {
			nx = (p.x - minX) / (maxX - minX)
		}
		if maxY != minY {
			ny = (p.y - minY) / (maxY - minY)
		}
		return Point{round1(ny * opts.Height), round1(nx * opts.Width)}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// cleanRing drops consecutive duplicate vertices and re-closes the ring.
func cleanRing(pts []Point) []Point {
	out := make([]Point, 0, len(pts))
	for i, p := range pts {
		if i > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

func shared(a, b map[[2]int64]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func smallestContaining(pt xy, rings [][]xy) []xy {
	var best []xy
	bestArea := math.Inf(1)
	for _, ring := range rings {
		if !contains(ring, pt) {
			continue
		}
		if a := area(ring); a < bestArea {
			best, bestArea = ring, a
		}
	}
	return best
}

// contains is an even-odd ray cast against a closed ring.
func contains(ring []xy, pt xy) bool {
	inside := false
	for i := 0; i+1 < len(ring); i++ {
		a, b := ring[i], ring[i+1]
		if (a.y > pt.y) != (b.y > pt.y) {
			xin := (b.x-a.x)*(pt.y-a.y)/(b.y-a.y) + a.x
			if pt.x < xin {
				inside = !inside
			}
		}
	}
	return inside
}

func area(ring []xy) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].x*ring[i+1].y - ring[i+1].x*ring[i].y
	}
	return math.Abs(sum) / 2
}
