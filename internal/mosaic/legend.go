package mosaic

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/terralens/forestmap/internal/landcover"
)

// Fixed legend layout. The panel sits to the right of the map; classes are
// drawn in class-code order regardless of their share of the map.
const (
	legendPanelWidth = 200
	legendRowSpacing = 30
	legendRowHeight  = 50
	legendSwatchSize = 20
	legendPadding    = 20
	titleBandHeight  = 60
	contentOffsetY   = 50
	contentOffsetX   = 10

	titleFontSize = 18.0
	labelFontSize = 13.0
)

// AttachLegend flattens the clipped map into the final artifact: a white
// sheet with a title row, the map, and the class legend panel.
func AttachLegend(mapImg image.Image, imageDate string) *image.NRGBA {
	mapW := mapImg.Bounds().Dx()
	mapH := mapImg.Bounds().Dy()

	legendHeight := landcover.NumClasses*legendRowHeight + legendPadding
	finalW := mapW + legendPanelWidth + legendPadding
	finalH := maxInt(mapH, legendHeight) + titleBandHeight

	out := image.NewNRGBA(image.Rect(0, 0, finalW, finalH))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	draw.Draw(out,
		image.Rect(contentOffsetX, contentOffsetY, contentOffsetX+mapW, contentOffsetY+mapH),
		mapImg, mapImg.Bounds().Min, draw.Src)

	title := fmt.Sprintf("Natural Forest Classification (%s)", imageDate)
	drawText(out, title, contentOffsetX, contentOffsetY/2, legendFace(titleFontSize))

	legendX := mapW + legendPadding
	labelFace := legendFace(labelFontSize)
	for i, class := range landcover.All() {
		rowY := contentOffsetY + i*legendRowSpacing
		swatch := image.Rect(legendX, rowY, legendX+legendSwatchSize, rowY+legendSwatchSize)
		draw.Draw(out, swatch, image.NewUniform(class.Color()), image.Point{}, draw.Src)
		drawText(out, class.Label(), legendX+legendSwatchSize+10, rowY+5, labelFace)
	}

	return out
}

// drawText draws a string with its ascent anchored just below (x, y).
func drawText(img draw.Image, text string, x, y int, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

var (
	legendFontOnce sync.Once
	legendFontData *opentype.Font
	legendFaceMu   sync.Mutex
	legendFaces    = make(map[float64]font.Face)
)

// legendFace returns a Go Regular face at the given size, falling back to
// the fixed basicfont when the embedded font fails to parse.
func legendFace(size float64) font.Face {
	legendFontOnce.Do(func() {
		legendFontData, _ = opentype.Parse(goregular.TTF)
	})
	if legendFontData == nil {
		return basicfont.Face7x13
	}

	legendFaceMu.Lock()
	defer legendFaceMu.Unlock()
	if face, ok := legendFaces[size]; ok {
		return face
	}
	face, err := opentype.NewFace(legendFontData, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	legendFaces[size] = face
	return face
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
