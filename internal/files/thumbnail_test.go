package files

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T, width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnail(t *testing.T) {
	t.Run("resizes wide images to 100px", func(t *testing.T) {
		data := samplePNG(t, 400, 200)

		thumb := Thumbnail(data)
		require.NotEqual(t, data, thumb)

		decoded, err := imaging.Decode(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.Equal(t, 100, decoded.Bounds().Dx())
		assert.Equal(t, 50, decoded.Bounds().Dy())
	})

	t.Run("undecodable payload falls back to the original bytes", func(t *testing.T) {
		data := []byte("definitely not an image")
		assert.Equal(t, data, Thumbnail(data))
	})
}
