package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
)

const (
	// watermarkScale is the overlay width as a fraction of the artifact width.
	watermarkScale = 0.044
	// watermarkMargin is the inset from the top-right corner, in pixels.
	watermarkMargin = 2
)

// Watermark stamps the overlay image onto the top-right corner of the
// artifact at the given opacity, overwriting the artifact in place.
func Watermark(artifactPath, watermarkPath string, opacity float64) error {
	base, err := readPNG(artifactPath)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	mark, err := readPNG(watermarkPath)
	if err != nil {
		return fmt.Errorf("reading watermark: %w", err)
	}

	baseBounds := base.Bounds()

	// Scale the watermark to a fixed fraction of the artifact width,
	// preserving its aspect ratio.
	targetW := int(float64(baseBounds.Dx()) * watermarkScale)
	if targetW < 1 {
		targetW = 1
	}
	markBounds := mark.Bounds()
	targetH := markBounds.Dy() * targetW / markBounds.Dx()
	if targetH < 1 {
		targetH = 1
	}

	scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), mark, markBounds, xdraw.Over, nil)

	out := image.NewRGBA(baseBounds)
	draw.Draw(out, baseBounds, base, baseBounds.Min, draw.Src)

	offset := image.Pt(baseBounds.Max.X-targetW-watermarkMargin, baseBounds.Min.Y+watermarkMargin)
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(out, image.Rectangle{Min: offset, Max: offset.Add(scaled.Bounds().Size())},
		scaled, image.Point{}, mask, image.Point{}, draw.Over)

	f, err := os.Create(artifactPath)
	if err != nil {
		return fmt.Errorf("rewriting artifact: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	return nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
