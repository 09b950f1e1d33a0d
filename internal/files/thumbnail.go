package files

import (
	"bytes"

	"github.com/disintegration/imaging"
)

const thumbnailWidth = 100

// Thumbnail renders a 100px-wide JPEG preview of an uploaded image. When
// the payload cannot be decoded or re-encoded, the original bytes are
// used as the thumbnail rather than failing the upload.
func Thumbnail(data []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	resized := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		return data
	}
	return buf.Bytes()
}
