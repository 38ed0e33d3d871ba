// Package imaging turns uploaded item photos into a stored JPEG and a
// thumbnail.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// Size limits for stored photos.
const (
	MaxDimension       = 1024
	ThumbnailDimension = 192
	MaxUploadBytes     = 10 << 20
)

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// OutputMIME is the type of every processed photo.
const OutputMIME = "image/jpeg"

// AllowedMIME lists the accepted input MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Photo is a processed upload.
type Photo struct {
	Image     []byte
	Thumbnail []byte
	MIME      string
}

// Process validates an upload by sniffing its bytes, downscales it to
// MaxDimension, and derives a thumbnail. Both outputs are JPEG.
func Process(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("image larger than %d bytes", MaxUploadBytes)
	}

	// Client headers are not trusted.
	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	full, err := encode(fit(img, MaxDimension, draw.CatmullRom))
	if err != nil {
		return nil, err
	}
	thumb, err := encode(fit(img, ThumbnailDimension, draw.ApproxBiLinear))
	if err != nil {
		return nil, err
	}

	return &Photo{Image: full, Thumbnail: thumb, MIME: OutputMIME}, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales img so neither side exceeds maxDim, keeping the aspect ratio.
// Images already within bounds are returned as is.
func fit(img image.Image, maxDim int, scaler draw.Scaler) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(1, h*maxDim/w)
	} else {
		newW = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	scaler.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
