package schedule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kiln_controller/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SelectsKind(t *testing.T) {
	p, err := Parse(models.ScheduleDocument{Name: " cone04 ", Type: "profile", Data: [][]float64{{60, 200}}}, Celsius)
	require.NoError(t, err)
	assert.IsType(t, &Waypoint{}, p)
	assert.Equal(t, "cone04", p.Name())

	p, err = Parse(models.ScheduleDocument{Name: "glaze", Type: "ramp-hold", Data: [][]float64{{100, 200, 5}}}, Celsius)
	require.NoError(t, err)
	assert.IsType(t, &RampHold{}, p)
	assert.Equal(t, models.ScheduleRampHold, p.Kind())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]models.ScheduleDocument{
		"no name":      {Type: "profile", Data: [][]float64{{60, 200}}},
		"no type":      {Name: "x", Data: [][]float64{{60, 200}}},
		"unknown type": {Name: "x", Type: "spline", Data: [][]float64{{60, 200}}},
		"no data":      {Name: "x", Type: "ramp-hold"},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := Parse(doc, Celsius)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Nil(t, p)
		})
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	docs := []models.ScheduleDocument{
		{Name: "bisque", Type: "profile", Data: [][]float64{{0, 0}, {3600, 600}, {5400, 600}, {9000, 1000}}},
		{Name: "glaze", Type: "ramp-hold", Data: [][]float64{{150, 600, 0}, {-300, 1200, 10}, {100, 900, 30}}},
	}
	for _, doc := range docs {
		t.Run(doc.Name, func(t *testing.T) {
			first, err := Parse(doc, Celsius)
			require.NoError(t, err)

			raw, err := json.Marshal(first.Document())
			require.NoError(t, err)
			decoded, err := DecodeDocument(raw)
			require.NoError(t, err)
			second, err := Parse(decoded, Celsius)
			require.NoError(t, err)

			assert.Equal(t, first.Document(), second.Document())
			assert.Equal(t, first.Duration(), second.Duration())
			first.Start(epoch)
			second.Start(epoch)
			for _, elapsed := range []float64{0, 100, 1800, 3600, 5000} {
				at := epoch.Add(time.Duration(elapsed * float64(time.Second)))
				assert.Equal(t, first.Target(elapsed, 0, at), second.Target(elapsed, 0, at))
			}
		})
	}
}

func TestParseFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slow.yaml")
	body := "name: slow\ntype: ramp-hold\ndata:\n  - [60, 500, 15]\n  - [120, 1000, 0]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p, err := ParseFile(path, Celsius)
	require.NoError(t, err)
	assert.Equal(t, "slow", p.Name())
	rh := p.(*RampHold)
	assert.Equal(t, []float64{60, 120}, rh.Rates())
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.json"), Celsius)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestDecodeDocument_Garbage(t *testing.T) {
	_, err := DecodeDocument([]byte("data: [[1, 2], oops"))
	assert.ErrorIs(t, err, ErrMalformed)
}
