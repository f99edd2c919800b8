package mosaic

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"

	"github.com/terralens/forestmap/internal/boundary"
)

// ApplyBoundaryMask clips the canvas to the true boundary polygon: pixels
// inside any exterior ring keep their mosaic color, everything else goes
// black. Interior rings (holes) are not subtracted; the fill covers each
// part's exterior outline only.
func ApplyBoundaryMask(canvas *Canvas, b *boundary.Boundary) *image.NRGBA {
	bounds := canvas.Bounds()
	mask := rasterizeBoundary(canvas, b)

	out := image.NewNRGBA(bounds)
	// Background is black where the mask is unset.
	draw.Draw(out, bounds, image.NewUniform(color.NRGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
	draw.DrawMask(out, bounds, canvas.Image, image.Point{}, mask, image.Point{}, draw.Over)
	return out
}

// rasterizeBoundary fills each exterior ring of the boundary into a binary
// alpha mask at canvas resolution. Ring vertices are projected through the
// canvas transform and clamped to the canvas.
func rasterizeBoundary(canvas *Canvas, b *boundary.Boundary) *image.Alpha {
	bounds := canvas.Bounds()
	mask := image.NewAlpha(bounds)

	for _, ring := range b.ExteriorRings() {
		if len(ring) < 3 {
			continue
		}

		ras := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
		ras.DrawOp = draw.Over

		x0, y0 := canvas.ToPixelClamped(ring[0][0], ring[0][1])
		ras.MoveTo(float32(x0), float32(y0))
		for _, c := range ring[1:] {
			x, y := canvas.ToPixelClamped(c[0], c[1])
			ras.LineTo(float32(x), float32(y))
		}
		ras.ClosePath()
		ras.Draw(mask, bounds, image.Opaque, image.Point{})
	}

	return mask
}
