// Package geo implements Area of Operations bounds: circle or rectangle
// containment in flat game-world coordinates, plus seed-point selection for
// vehicle deployments that must start outside the AO.
package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/batcom/engine/internal/model"
	"github.com/batcom/engine/internal/util"
)

// ErrBadBounds is returned for malformed bounds definitions.
var ErrBadBounds = errors.New("invalid AO bounds definition")

// VehicleSeedClearance is how far outside the AO a deployed vehicle group is
// seeded before it drives to its ordered destination.
const VehicleSeedClearance = 2000.0

type boundsKind int

const (
	kindUndefined boundsKind = iota
	kindCircle
	kindRect
)

// Bounds is the geographic envelope of the active AO. The zero value is
// undefined bounds, for which containment degrades to a finite-coordinate
// check.
type Bounds struct {
	kind   boundsKind
	center geom.XY
	radius float64
	rect   geom.Envelope
}

// Circle builds circular bounds around a center point.
func Circle(center model.Position, radius float64) (Bounds, error) {
	if radius <= 0 || !center.Finite() {
		return Bounds{}, ErrBadBounds
	}
	return Bounds{
		kind:   kindCircle,
		center: geom.XY{X: center.X, Y: center.Y},
		radius: radius,
	}, nil
}

// Rectangle builds axis-aligned rectangular bounds from two opposite corners.
func Rectangle(a, b model.Position) (Bounds, error) {
	if !a.Finite() || !b.Finite() {
		return Bounds{}, ErrBadBounds
	}
	env, err := geom.NewEnvelope([]geom.XY{{X: a.X, Y: a.Y}, {X: b.X, Y: b.Y}})
	if err != nil || env.IsEmpty() {
		return Bounds{}, ErrBadBounds
	}
	center, _ := env.Center().XY()
	return Bounds{kind: kindRect, rect: env, center: center}, nil
}

// Undefined returns bounds with no geographic restriction.
func Undefined() Bounds { return Bounds{} }

// Defined reports whether the bounds carry a geographic shape.
func (b Bounds) Defined() bool { return b.kind != kindUndefined }

// Contains reports whether the position lies within the AO. Undefined bounds
// accept any finite position.
func (b Bounds) Contains(p model.Position) bool {
	if !p.Finite() {
		return false
	}
	switch b.kind {
	case kindCircle:
		dx, dy := p.X-b.center.X, p.Y-b.center.Y
		return math.Sqrt(dx*dx+dy*dy) <= b.radius
	case kindRect:
		return b.rect.Contains(geom.XY{X: p.X, Y: p.Y})
	default:
		return true
	}
}

// Center returns the bounds center, or the destination itself when undefined.
func (b Bounds) Center() model.Position {
	return model.Position{X: b.center.X, Y: b.center.Y}
}

// SeedOutside picks a spawn point at least VehicleSeedClearance meters
// outside the AO, on the ray from the AO center through the destination.
// With undefined bounds the destination itself is returned.
func (b Bounds) SeedOutside(dest model.Position) model.Position {
	if b.kind == kindUndefined {
		return dest
	}
	reach := b.extent() + VehicleSeedClearance

	dx, dy := dest.X-b.center.X, dest.Y-b.center.Y
	norm := math.Sqrt(dx*dx + dy*dy)
	if norm == 0 {
		// destination at dead center, seed due north
		dx, dy, norm = 0, 1, 1
	}
	return model.Position{
		X: b.center.X + dx/norm*reach,
		Y: b.center.Y + dy/norm*reach,
		Z: 0,
	}
}

// extent is the distance from center that guarantees a point is outside.
func (b Bounds) extent() float64 {
	switch b.kind {
	case kindCircle:
		return b.radius
	case kindRect:
		min, _ := b.rect.Min().XY()
		max, _ := b.rect.Max().XY()
		dx, dy := max.X-min.X, max.Y-min.Y
		return math.Sqrt(dx*dx+dy*dy) / 2
	default:
		return 0
	}
}

// FromMap parses a bounds definition from a decoded guardrails record.
// Recognized shapes:
//
//	{"type": "circle", "center": [x, y], "radius": r}
//	{"type": "rectangle", "min": [x, y], "max": [x, y]}
func FromMap(raw map[string]any) (Bounds, error) {
	if len(raw) == 0 {
		return Undefined(), nil
	}
	kind, _ := util.ToString(raw["type"])
	switch kind {
	case "circle":
		center, err := positionField(raw, "center")
		if err != nil {
			return Bounds{}, err
		}
		radius, ok := util.ToFloat(raw["radius"])
		if !ok {
			return Bounds{}, fmt.Errorf("%w: missing radius", ErrBadBounds)
		}
		return Circle(center, radius)
	case "rectangle":
		min, err := positionField(raw, "min")
		if err != nil {
			return Bounds{}, err
		}
		max, err := positionField(raw, "max")
		if err != nil {
			return Bounds{}, err
		}
		return Rectangle(min, max)
	default:
		return Bounds{}, fmt.Errorf("%w: unknown type %q", ErrBadBounds, kind)
	}
}

func positionField(raw map[string]any, key string) (model.Position, error) {
	arr, ok := raw[key].([]any)
	if !ok {
		return model.Position{}, fmt.Errorf("%w: missing %s", ErrBadBounds, key)
	}
	coords := make([]float64, 0, len(arr))
	for _, v := range arr {
		f, ok := util.ToFloat(v)
		if !ok {
			return model.Position{}, fmt.Errorf("%w: non-numeric %s", ErrBadBounds, key)
		}
		coords = append(coords, f)
	}
	pos, err := model.PositionFromSlice(coords)
	if err != nil {
		return model.Position{}, fmt.Errorf("%w: %s: %v", ErrBadBounds, key, err)
	}
	return pos, nil
}
