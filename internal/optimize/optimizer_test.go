package optimize

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTestPNG(t *testing.T, dir string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}

	path := filepath.Join(dir, "capture.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, img))
	return path
}

func TestOptimize_PNG(t *testing.T) {
	source := writeTestPNG(t, t.TempDir())
	optimizer := NewOptimizer(85, zap.NewNop())

	var progress []int
	result, err := optimizer.Optimize(source, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(result.Path, "_optimized.jpg"))
	assert.Positive(t, result.OptimizedSize)
	assert.Positive(t, result.OriginalSize)
	assert.InDelta(t, float64(result.OptimizedSize)/float64(result.OriginalSize), result.Ratio, 1e-9)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.Equal(t, result.OptimizedSize, info.Size())

	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.IsNonDecreasing(t, progress)
}

func TestOptimize_MissingFile(t *testing.T) {
	optimizer := NewOptimizer(85, zap.NewNop())
	_, err := optimizer.Optimize(filepath.Join(t.TempDir(), "nope.png"), nil)
	assert.Error(t, err)
}

func TestOptimize_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	optimizer := NewOptimizer(85, zap.NewNop())
	_, err := optimizer.Optimize(path, nil)
	assert.ErrorContains(t, err, "unsupported capture format")
}

func TestNewOptimizer_QualityBounds(t *testing.T) {
	for _, quality := range []int{0, -1, 101} {
		optimizer := NewOptimizer(quality, zap.NewNop())
		assert.Equal(t, 85, optimizer.quality, "out-of-range quality %d falls back to default", quality)
	}
}
