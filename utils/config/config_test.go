package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
)

func TestParseGrid(t *testing.T) {
	c, err := config.Parse([]byte(`
input:
  grid:
    rows: 5
    cols: 6
    spacing: 120
control:
  fps: 30
  signal:
    default_cycle: 40
`))
	require.NoError(t, err)
	require.NotNil(t, c.Input.Grid)
	assert.Equal(t, 5, c.Input.Grid.Rows)
	assert.Equal(t, 30, c.Control.FPS)
}

func TestParseStrict(t *testing.T) {
	_, err := config.Parse([]byte(`
input:
  grid: {rows: 2, cols: 2, spacing: 10}
control:
  frames_per_second: 30
`))
	assert.Error(t, err)
}

func TestParseInputSource(t *testing.T) {
	_, err := config.Parse([]byte(`control: {fps: 30}`))
	assert.Error(t, err)

	_, err = config.Parse([]byte(`
input:
  grid: {rows: 2, cols: 2, spacing: 10}
control:
  router: fiblab
`))
	assert.Error(t, err)

	_, err = config.Parse([]byte(`
input:
  map: {db: srt, col: map_beijing}
control:
  router: fiblab
`))
	assert.NoError(t, err)
}

func TestRuntimeDefaults(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{})
	assert.Equal(t, 60, rc.C.FPS)
	assert.Equal(t, 2, rc.C.EmitEvery)
	assert.Equal(t, 1, rc.C.DisplayEveryNCars)
	assert.Equal(t, 600, rc.C.DefaultCars)
	require.NotNil(t, rc.C.PriorityRatio)
	assert.InDelta(t, 0.02, *rc.C.PriorityRatio, 1e-12)
	assert.InDelta(t, 50/3.6, rc.C.FreeFlowSpeed, 1e-9)
	assert.Equal(t, 7.0, rc.C.CarSpacing)
	assert.Equal(t, 100, rc.C.Patience)
	assert.Equal(t, config.RouterLocal, rc.C.Router)
	assert.Equal(t, int32(40), rc.C.Signal.DefaultCycle)
	assert.Equal(t, 500, rc.C.Signal.MaxLightsSent)
	assert.Equal(t, rc.C, rc.All.Control)
}

func TestInputPathCache(t *testing.T) {
	p := config.InputPath{DB: "srt", Col: "map"}
	assert.Equal(t, "srt.map.pb", p.GetCachePath())
	p.Cache = "x.pb"
	assert.Equal(t, "x.pb", p.GetCachePath())
}

func TestPriorityRatio(t *testing.T) {
	c, err := config.Parse([]byte(`
input:
  grid: {rows: 2, cols: 2, spacing: 10}
control:
  priority_ratio: 0
`))
	require.NoError(t, err)
	rc := config.NewRuntimeConfig(c)
	assert.Equal(t, 0.0, *rc.C.PriorityRatio, "explicit zero disables priority vehicles")

	_, err = config.Parse([]byte(`
input:
  grid: {rows: 2, cols: 2, spacing: 10}
control:
  priority_ratio: 1.5
`))
	assert.Error(t, err)
}
