//go:build purego || js

package imaging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func TestWriteQuicklookTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ql.tiff")
	require.NoError(t, WriteQuicklook(path, ramp(3, 5), 3, 5, nil, DefaultOptions()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := tiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}

func TestWriteQuicklookUnknownFormat(t *testing.T) {
	err := WriteQuicklook(filepath.Join(t.TempDir(), "ql.bmp"), ramp(2, 2), 2, 2, nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestDilateReflectsAtEdges(t *testing.T) {
	m := matOf(3, 3, []float32{1, 0, 0, 0, 0, 0, 0, 0, 0})
	var out Mat
	morphDilateEllipse(m, &out, 3, 1)
	assert.Equal(t, []float32{1, 1, 0, 1, 0, 0, 0, 0, 0}, out.DataFloat32())
}
