package mosaic

import (
	"image"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/terralens/forestmap/internal/boundary"
)

// ErrNoTiles indicates that no tile raster survived fetching, so there is
// nothing to composite.
var ErrNoTiles = eris.New("mosaic: no tiles to merge")

const (
	metersPerDegLat = 111000.0

	// defaultScaleM is the nominal ground-sample distance of the output
	// canvas; wideScaleM replaces it for regions over wideAreaM2 to bound
	// memory.
	defaultScaleM = 10.0
	wideScaleM    = 20.0
	wideAreaM2    = 1e9

	// maxCanvasDim caps either pixel dimension of the canvas.
	maxCanvasDim = 5000
)

// Canvas is the mosaic pixel canvas together with its geographic frame.
// The linear geo-to-pixel transform is fixed at construction; longitude is
// linear in x, latitude is linear and inverted in y.
type Canvas struct {
	Image *image.NRGBA
	box   boundary.BBox
}

// NewCanvas sizes a canvas from the bounding box's geographic extent using
// an equirectangular meters approximation and the adaptive scale rules.
func NewCanvas(box boundary.BBox) *Canvas {
	widthM := box.Width() * metersPerDegLat * math.Cos(box.MidLat()*math.Pi/180)
	heightM := box.Height() * metersPerDegLat

	scale := defaultScaleM
	if widthM*heightM > wideAreaM2 {
		scale = wideScaleM
	}

	w := int(widthM / scale)
	h := int(heightM / scale)

	// Downscale uniformly so both dimensions fit, preserving aspect ratio.
	if w > maxCanvasDim || h > maxCanvasDim {
		f := math.Max(float64(w)/maxCanvasDim, float64(h)/maxCanvasDim)
		w = int(float64(w) / f)
		h = int(float64(h) / f)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	zap.L().Debug("sized mosaic canvas",
		zap.Int("width_px", w),
		zap.Int("height_px", h),
		zap.Float64("scale_m", scale),
	)
	return &Canvas{
		Image: image.NewNRGBA(image.Rect(0, 0, w, h)),
		box:   box,
	}
}

// Bounds returns the canvas pixel bounds.
func (c *Canvas) Bounds() image.Rectangle { return c.Image.Bounds() }

// BBox returns the geographic frame of the canvas.
func (c *Canvas) BBox() boundary.BBox { return c.box }

// ToPixel projects a geographic coordinate onto the canvas. The result is
// unclamped: the north-west corner maps to (0,0) and the south-east corner
// to (width, height).
func (c *Canvas) ToPixel(lon, lat float64) (x, y int) {
	b := c.Image.Bounds()
	x = int((lon - c.box.West) / c.box.Width() * float64(b.Dx()))
	y = int((c.box.North - lat) / c.box.Height() * float64(b.Dy()))
	return x, y
}

// ToPixelClamped projects a geographic coordinate and clamps it inside the
// canvas. Mask rasterization uses this so boundary vertices outside the
// frame cannot index out of bounds.
func (c *Canvas) ToPixelClamped(lon, lat float64) (x, y int) {
	x, y = c.ToPixel(lon, lat)
	b := c.Image.Bounds()
	x = clamp(x, 0, b.Dx()-1)
	y = clamp(y, 0, b.Dy()-1)
	return x, y
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Compose builds the mosaic canvas for the bounding box and projects every
// tile result into it at its geographic offset. Gaps where no tile was
// available remain black. Returns ErrNoTiles when results is empty.
func Compose(box boundary.BBox, results []Result) (*Canvas, error) {
	if len(results) == 0 {
		return nil, ErrNoTiles
	}

	canvas := NewCanvas(box)
	for _, res := range results {
		canvas.paste(res)
	}
	return canvas, nil
}

// paste resizes a tile raster to its projected pixel rectangle and draws
// it onto the canvas. Degenerate rectangles produced by rounding are
// skipped.
func (c *Canvas) paste(res Result) {
	rect := res.Tile.Rect
	x1, y1 := c.ToPixel(rect.West, rect.North)
	x2, y2 := c.ToPixel(rect.East, rect.South)
	if x2-x1 <= 0 || y2-y1 <= 0 {
		zap.L().Debug("skipping degenerate tile rectangle", zap.Int("tile", res.Tile.Index))
		return
	}

	// CatmullRom keeps class-color edges clean when the render scale and
	// canvas scale differ.
	dst := image.Rect(x1, y1, x2, y2)
	xdraw.CatmullRom.Scale(c.Image, dst, res.Image, res.Image.Bounds(), xdraw.Src, nil)
}
