package pairlist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFlat(t *testing.T) {
	m, err := Decode(`[["name","alpha"],["count",3],["ratio","0.5"],["armed",true]]`)
	require.NoError(t, err)

	name, ok := m.String("name")
	assert.True(t, ok)
	assert.Equal(t, "alpha", name)

	count, ok := m.Int("count")
	assert.True(t, ok)
	assert.Equal(t, 3, count)

	// numeric strings coerce
	ratio, ok := m.Float("ratio")
	assert.True(t, ok)
	assert.Equal(t, 0.5, ratio)

	armed, ok := m.Bool("armed")
	assert.True(t, ok)
	assert.True(t, armed)
}

func TestDecodeNested(t *testing.T) {
	m, err := Decode(`[["weather",[["rain",0.3],["fog",0.1]]],["pos",[100,200,0]]]`)
	require.NoError(t, err)

	weather, ok := m.Child("weather")
	require.True(t, ok)
	rain, ok := weather.Float("rain")
	assert.True(t, ok)
	assert.Equal(t, 0.3, rain)

	pos, ok := m.FloatSlice("pos")
	require.True(t, ok)
	assert.Equal(t, []float64{100, 200, 0}, pos)
}

func TestDecodeBadShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"object not array", `{"a":1}`},
		{"triple element", `[["a",1,2]]`},
		{"non-string key", `[[1,"a"]]`},
		{"scalar", `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
		})
	}
	_, err := Decode(`[[1,"a"]]`)
	assert.True(t, errors.Is(err, ErrBadShape))
}

func TestDecodeEmpty(t *testing.T) {
	m, err := Decode(`[]`)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestEncodePreservesOrder(t *testing.T) {
	m := NewMap().
		Set("status", "ok").
		Set("version", "1.0").
		Set("detail", NewMap().Set("b", 1).Set("a", 2))

	out, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, `[["status","ok"],["version","1.0"],["detail",[["b",1],["a",2]]]]`, out)
}

func TestRoundTrip(t *testing.T) {
	in := `[["status","ok"],["nested",[["x",1]]],["list",["a","b"]]]`
	m, err := Decode(in)
	require.NoError(t, err)
	out, err := m.Encode()
	require.NoError(t, err)

	again, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, m.Keys(), again.Keys())
}

func TestResponseHelpers(t *testing.T) {
	ok := OK("version", "2.0")
	s, _ := ok.String("status")
	assert.Equal(t, "ok", s)
	v, _ := ok.String("version")
	assert.Equal(t, "2.0", v)

	e := Error(errors.New("boom"))
	s, _ = e.String("status")
	assert.Equal(t, "error", s)
	msg, _ := e.String("error")
	assert.Equal(t, "boom", msg)
}
