package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "se100yr24ha.asc")
	require.NoError(t, os.WriteFile(path, []byte(
		"ncols 2\nnrows 2\nxllcorner -90\nyllcorner 30\ncellsize 0.5\nNODATA_value -9\n1000 2000\n3000 -9\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, describe(&buf, path, true))

	out := buf.String()
	assert.Contains(t, out, "se100yr24ha.asc")
	assert.Contains(t, out, "size:      2 x 2")
	assert.Contains(t, out, "bounds:    -90 30 -89 31")
	assert.Contains(t, out, "valid:     3 of 4")
	assert.Contains(t, out, "min/max:   1 / 3 in")
	assert.Contains(t, out, "mean:      2.000 in")
}

func TestDescribe_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, describe(&buf, filepath.Join(t.TempDir(), "nope.asc"), false))
}
