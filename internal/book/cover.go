package book

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	defaultThumbnailWidth = 300
	thumbnailJPEGQuality  = 90
	maxCoverPixels        = 100 * 1000 * 1000 // 100 megapixels
)

// Thumbnail is an encoded, resized cover image.
type Thumbnail struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// CoverThumbnail decodes the cover image and scales it down to at most
// maxWidth pixels wide. Covers with transparency stay PNG; everything else is
// re-encoded as JPEG.
func (b *Book) CoverThumbnail(maxWidth int) (Thumbnail, error) {
	if b.pkg == nil {
		return Thumbnail{}, ErrNotOpen
	}
	cover := b.pkg.DetectCover()
	if cover == nil {
		return Thumbnail{}, ErrNoCover
	}
	data, err := b.resources().ReadFile(cover.URL)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to read cover: %w", err)
	}
	if maxWidth <= 0 {
		maxWidth = defaultThumbnailWidth
	}
	return thumbnail(data, cover.MediaType, maxWidth)
}

func thumbnail(data []byte, mediaType string, maxWidth int) (Thumbnail, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to decode cover: %w", err)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); pixels > maxCoverPixels {
		return Thumbnail{}, fmt.Errorf("cover too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to decode cover: %w", err)
	}
	img := src
	if src.Bounds().Dx() > maxWidth {
		img = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}

	out := Thumbnail{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	var buf bytes.Buffer
	if isPNG(mediaType) && hasAlpha(img) {
		out.Format = "png"
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, img)
	} else {
		out.Format = "jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailJPEGQuality})
	}
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%s encode failed: %w", out.Format, err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

func isPNG(mediaType string) bool {
	return strings.EqualFold(mediaType, "image/png")
}

func hasAlpha(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}
