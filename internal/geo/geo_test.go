package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batcom/engine/internal/model"
)

func TestCircleContains(t *testing.T) {
	b, err := Circle(model.Position{X: 5000, Y: 5000}, 1500)
	require.NoError(t, err)

	tests := []struct {
		name string
		pos  model.Position
		want bool
	}{
		{"center", model.Position{X: 5000, Y: 5000}, true},
		{"inside", model.Position{X: 5500, Y: 5500}, true},
		{"on boundary", model.Position{X: 6500, Y: 5000}, true},
		{"outside", model.Position{X: 20000, Y: 20000}, false},
		{"non-finite", model.Position{X: math.NaN(), Y: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Contains(tt.pos))
		})
	}
}

func TestRectangleContains(t *testing.T) {
	b, err := Rectangle(model.Position{X: 0, Y: 0}, model.Position{X: 1000, Y: 2000})
	require.NoError(t, err)

	assert.True(t, b.Contains(model.Position{X: 500, Y: 1000}))
	assert.True(t, b.Contains(model.Position{X: 0, Y: 0}))
	assert.False(t, b.Contains(model.Position{X: 1001, Y: 100}))
	assert.False(t, b.Contains(model.Position{X: -1, Y: 100}))

	// corner order must not matter
	flipped, err := Rectangle(model.Position{X: 1000, Y: 2000}, model.Position{X: 0, Y: 0})
	require.NoError(t, err)
	assert.True(t, flipped.Contains(model.Position{X: 500, Y: 1000}))
	assert.Equal(t, b.Center(), flipped.Center())
}

func TestUndefinedBounds(t *testing.T) {
	b := Undefined()
	assert.False(t, b.Defined())
	// any finite point passes, non-finite fails
	assert.True(t, b.Contains(model.Position{X: 1e9, Y: -1e9}))
	assert.False(t, b.Contains(model.Position{X: math.Inf(1)}))
}

func TestSeedOutside(t *testing.T) {
	center := model.Position{X: 5000, Y: 5000}
	b, err := Circle(center, 1500)
	require.NoError(t, err)

	dest := model.Position{X: 6000, Y: 5000}
	seed := b.SeedOutside(dest)
	assert.False(t, b.Contains(seed))
	assert.GreaterOrEqual(t, seed.Distance2D(center), 1500+VehicleSeedClearance-1e-6)

	// destination at dead center still yields a point outside
	seed = b.SeedOutside(center)
	assert.False(t, b.Contains(seed))
}

func TestCircleValidation(t *testing.T) {
	_, err := Circle(model.Position{X: 0, Y: 0}, 0)
	assert.ErrorIs(t, err, ErrBadBounds)
	_, err = Circle(model.Position{X: math.NaN()}, 100)
	assert.ErrorIs(t, err, ErrBadBounds)
}

func TestFromMap(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr bool
		check   func(t *testing.T, b Bounds)
	}{
		{
			name: "circle",
			raw:  map[string]any{"type": "circle", "center": []any{5000.0, 5000.0}, "radius": 1500.0},
			check: func(t *testing.T, b Bounds) {
				assert.True(t, b.Contains(model.Position{X: 5100, Y: 5100}))
				assert.False(t, b.Contains(model.Position{X: 9000, Y: 9000}))
			},
		},
		{
			name: "rectangle with string numbers",
			raw:  map[string]any{"type": "rectangle", "min": []any{"0", "0"}, "max": []any{"100", "100"}},
			check: func(t *testing.T, b Bounds) {
				assert.True(t, b.Contains(model.Position{X: 50, Y: 50}))
			},
		},
		{
			name: "empty means undefined",
			raw:  map[string]any{},
			check: func(t *testing.T, b Bounds) {
				assert.False(t, b.Defined())
			},
		},
		{name: "unknown type", raw: map[string]any{"type": "hexagon"}, wantErr: true},
		{name: "circle without radius", raw: map[string]any{"type": "circle", "center": []any{0.0, 0.0}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := FromMap(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, b)
		})
	}
}
