package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhchang/tasksplit/geo"
)

const (
	boundary = "../../geo/testdata/aoi.geojson"
	roads    = "../../geo/testdata/roads.geojson"
)

func execute(t *testing.T, args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestModeFollowsGivenFlag(t *testing.T) {
	cases := []struct {
		args []string
		want splitMode
	}{
		{[]string{"-b", boundary, "-m", "0"}, squareMode},
		{[]string{"-b", boundary, "-n", "0"}, densityMode},
		{[]string{"-b", boundary, "-c", "custom.sql"}, densityMode},
		{[]string{"-b", boundary, "-s", roads}, featuresMode},
	}
	for _, c := range cases {
		cmd := newRootCmd()
		require.NoError(t, cmd.ParseFlags(c.args))
		assert.Equal(t, c.want, mode(cmd), "%v", c.args)
	}
}

func TestZeroMetersIsRejected(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tasks.geojson")
	err := execute(t, "-b", boundary, "-m", "0", "--dburl", "postgres://nobody@127.0.0.1:1/db", "-o", out)
	assert.True(t, errors.Is(err, geo.ErrValidation), "%v", err)
	assert.Equal(t, 2, exitCode(err))
	assert.NoFileExists(t, out)
}

func TestZeroBuildingsIsRejected(t *testing.T) {
	err := execute(t, "-b", boundary, "-n", "0", "--dburl", "postgres://nobody@127.0.0.1:1/db")
	assert.True(t, errors.Is(err, geo.ErrValidation), "%v", err)
}

func TestSquares(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tasks.geojson")
	require.NoError(t, execute(t, "-b", boundary, "-m", "100", "-o", out))
	all, err := geo.ReadFeatureCollection(out)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	require.NoError(t, execute(t, "-b", boundary, "-m", "100", "-e", roads, "-o", out))
	holding, err := geo.ReadFeatureCollection(out)
	require.NoError(t, err)
	assert.Len(t, holding, 1)
}

func TestFeatures(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tasks.geojson")
	require.NoError(t, execute(t, "-b", boundary, "-s", roads, "-o", out))
	fc, err := geo.ReadFeatureCollection(out)
	require.NoError(t, err)
	assert.Len(t, fc, 4)

	err = execute(t, "-b", boundary, "-s", "PG:ways_line", "-o", out)
	assert.True(t, errors.Is(err, geo.ErrValidation))
}

func TestFlagErrors(t *testing.T) {
	assert.Error(t, execute(t, "-m", "100"))
	assert.Error(t, execute(t, "-b", boundary))
	assert.Error(t, execute(t, "-b", boundary, "-m", "100", "-n", "5"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 2, exitCode(fmt.Errorf("aoi polygon 1: %w", geo.ErrNotPolygon)))
	assert.Equal(t, 1, exitCode(errors.New("connection refused")))
}
