// Package video implements the handheld's 160x120, 256-color
// framebuffer: palette construction, nearest-color lookup, and the
// clipped blit/fill primitives the kernel's drawing calls compile
// down to.
package video

import (
	"math"

	"portatil/internal/debug"
	"portatil/internal/fixedpoint"
)

const (
	Width     = 160
	Height    = 120
	Pixels    = Width * Height
	NumColors = 256
)

// ColorNone marks a disabled transparent/background/foreground color.
const ColorNone = 0xFFFF

// Anchor bits combine a vertical and horizontal component, matching
// the bitmask the draw-state syscalls pass through unexamined.
const (
	AnchorTop     = 0b0000
	AnchorBottom  = 0b0010
	AnchorMiddle  = 0b0011
	AnchorLeft    = 0b0000
	AnchorRight   = 0b1000
	AnchorCenter  = 0b1100
	AnchorDefault = AnchorTop | AnchorLeft
)

// Point2D is an integer screen or image coordinate.
type Point2D struct {
	X, Y int
}

// Rectangle2D is an integer axis-aligned rectangle.
type Rectangle2D struct {
	X, Y, Width, Height int
}

// Image is a single-plane, palette-indexed bitmap, the format every
// sprite, tile, and font glyph sheet uses.
type Image struct {
	Width, Height int
	Data          []uint8
}

// paletteRow describes one of the 16 hues as a min/mid/max RGB triple
// interpolated across 16 palette entries.
type paletteRow struct {
	min, mid, max [3]uint8
}

var paletteRows = [16]paletteRow{
	{[3]uint8{0, 0, 0}, [3]uint8{128, 128, 128}, [3]uint8{255, 255, 255}},       // White/Gray/Black
	{[3]uint8{32, 0, 0}, [3]uint8{255, 0, 0}, [3]uint8{255, 224, 224}},         // Red
	{[3]uint8{32, 8, 0}, [3]uint8{255, 64, 0}, [3]uint8{255, 224, 224}},        // Red/Orange
	{[3]uint8{32, 16, 0}, [3]uint8{255, 128, 0}, [3]uint8{255, 240, 224}},      // Orange
	{[3]uint8{32, 16, 0}, [3]uint8{255, 192, 0}, [3]uint8{255, 255, 224}},      // Orange/Yellow
	{[3]uint8{32, 32, 0}, [3]uint8{255, 255, 0}, [3]uint8{255, 255, 224}},      // Yellow
	{[3]uint8{16, 32, 0}, [3]uint8{128, 255, 0}, [3]uint8{240, 255, 224}},      // Lime
	{[3]uint8{0, 32, 0}, [3]uint8{0, 255, 0}, [3]uint8{224, 255, 224}},         // Green
	{[3]uint8{0, 32, 16}, [3]uint8{0, 255, 128}, [3]uint8{224, 255, 240}},      // Green/Teal
	{[3]uint8{0, 32, 32}, [3]uint8{0, 255, 255}, [3]uint8{224, 255, 255}},      // Teal
	{[3]uint8{0, 16, 32}, [3]uint8{0, 128, 255}, [3]uint8{224, 240, 255}},      // Teal/Blue
	{[3]uint8{0, 0, 32}, [3]uint8{0, 0, 255}, [3]uint8{224, 224, 255}},         // Blue
	{[3]uint8{8, 0, 32}, [3]uint8{64, 0, 255}, [3]uint8{240, 224, 255}},        // Blue/Purple
	{[3]uint8{16, 0, 32}, [3]uint8{128, 0, 255}, [3]uint8{240, 224, 255}},      // Purple
	{[3]uint8{32, 0, 32}, [3]uint8{255, 0, 255}, [3]uint8{255, 224, 255}},      // Fuchsia
	{[3]uint8{32, 0, 16}, [3]uint8{255, 0, 128}, [3]uint8{255, 224, 240}},      // Fuchsia/Red
}

// buildPalette computes the 256-entry, 3-bytes-per-color palette: 16
// hue rows, each interpolated min->mid over 8 steps and mid->max over
// the following 8.
func buildPalette() [NumColors * 3]uint8 {
	var palette [NumColors * 3]uint8
	colorIndex := 0

	for _, row := range paletteRows {
		redStep := float32(int(row.mid[0])-int(row.min[0])) / 7.0
		greenStep := float32(int(row.mid[1])-int(row.min[1])) / 7.0
		blueStep := float32(int(row.mid[2])-int(row.min[2])) / 7.0

		for column := 0; column < 8; column++ {
			palette[colorIndex*3] = row.min[0] + uint8(math.Floor(float64(float32(column)*redStep)))
			palette[colorIndex*3+1] = row.min[1] + uint8(math.Floor(float64(float32(column)*greenStep)))
			palette[colorIndex*3+2] = row.min[2] + uint8(math.Floor(float64(float32(column)*blueStep)))
			colorIndex++
		}

		redStep = float32(int(row.max[0])-int(row.mid[0])) / 8.0
		greenStep = float32(int(row.max[1])-int(row.mid[1])) / 8.0
		blueStep = float32(int(row.max[2])-int(row.mid[2])) / 8.0

		for column := 1; column < 9; column++ {
			palette[colorIndex*3] = row.mid[0] + uint8(math.Floor(float64(float32(column)*redStep)))
			palette[colorIndex*3+1] = row.mid[1] + uint8(math.Floor(float64(float32(column)*greenStep)))
			palette[colorIndex*3+2] = row.mid[2] + uint8(math.Floor(float64(float32(column)*blueStep)))
			colorIndex++
		}
	}

	return palette
}

// GPU owns the framebuffer, the fixed color palette, and the current
// transparent/background/foreground draw-state colors.
type GPU struct {
	framebuffer      [Pixels]uint8
	palette          [NumColors * 3]uint8
	transparentColor uint16
	backgroundColor  uint16
	foregroundColor  uint16

	drawAnchor uint8
	drawScaleX fixedpoint.F16
	drawScaleY fixedpoint.F16

	logger *debug.Logger
}

// SetLogger attaches a diagnostics logger.
func (g *GPU) SetLogger(logger *debug.Logger) {
	g.logger = logger
}

// New builds the color palette and a cleared framebuffer.
func New() *GPU {
	g := &GPU{
		palette:          buildPalette(),
		transparentColor: ColorNone,
		backgroundColor:  ColorNone,
		foregroundColor:  ColorNone,
		drawAnchor:       AnchorDefault,
		drawScaleX:       fixedpoint.One,
		drawScaleY:       fixedpoint.One,
	}
	return g
}

// Framebuffer returns the raw palette-indexed pixel buffer, for the
// host shell to blit each frame.
func (g *GPU) Framebuffer() []uint8 {
	return g.framebuffer[:]
}

// Palette returns the 256-entry RGB palette as packed bytes.
func (g *GPU) Palette() []uint8 {
	return g.palette[:]
}

// Clear fills the entire framebuffer with a single color.
func (g *GPU) Clear(colorIndex uint8) {
	for i := range g.framebuffer {
		g.framebuffer[i] = colorIndex
	}
}

func (g *GPU) SetTransparentColor(c uint16) { g.transparentColor = c }
func (g *GPU) SetBackgroundColor(c uint16)  { g.backgroundColor = c }
func (g *GPU) SetForegroundColor(c uint16)  { g.foregroundColor = c }

// SetDrawAnchor sets the anchor mask every subsequent Draw/DrawRectangle/
// DrawText call interprets its position against, combining one of
// AnchorTop/AnchorBottom/AnchorMiddle with one of AnchorLeft/AnchorRight/
// AnchorCenter.
func (g *GPU) SetDrawAnchor(anchor uint8) { g.drawAnchor = anchor }

// SetDrawScale sets the scale every subsequent Draw/DrawRectangle/DrawText
// call applies to its target size before anchoring and clipping.
func (g *GPU) SetDrawScale(x, y fixedpoint.F16) { g.drawScaleX, g.drawScaleY = x, y }

// anchorPosition shifts position so that rect lands relative to it
// according to the current anchor mask, rather than always from its
// top-left corner.
func (g *GPU) anchorPosition(position Point2D, rect Rectangle2D) Point2D {
	switch g.drawAnchor & 0b0011 {
	case AnchorBottom:
		position.Y -= rect.Height
	case AnchorMiddle:
		position.Y -= rect.Height / 2
	}
	switch g.drawAnchor & 0b1100 {
	case AnchorRight:
		position.X -= rect.Width
	case AnchorCenter:
		position.X -= rect.Width / 2
	}
	return position
}

// scaleDim scales an integer dimension by a Q16.16 factor.
func scaleDim(n int, scale fixedpoint.F16) int {
	return int(fixedpoint.Mult(fixedpoint.FromInt(int32(n)), scale).ToInt())
}

// NearestColorIndex finds the palette entry closest to an RGB triple,
// weighting green heaviest and blue second, the way the human eye's
// sensitivity differs by channel.
func (g *GPU) NearestColorIndex(red, green, blue uint8) uint8 {
	nearestIndex := uint8(0)
	nearestDistance := math.MaxInt32

	for i := 0; i < NumColors; i++ {
		redDiff := int(g.palette[i*3]) - int(red)
		greenDiff := int(g.palette[i*3+1]) - int(green)
		blueDiff := int(g.palette[i*3+2]) - int(blue)

		distance := 2*redDiff*redDiff + 4*greenDiff*greenDiff + 3*blueDiff*blueDiff
		if distance < nearestDistance {
			nearestDistance = distance
			nearestIndex = uint8(i)
		}
	}

	return nearestIndex
}

func (g *GPU) resolveColor(source uint8) (uint8, bool) {
	if uint16(source) == g.transparentColor {
		if g.backgroundColor == ColorNone {
			return 0, false
		}
		return uint8(g.backgroundColor), true
	}
	if g.foregroundColor != ColorNone {
		return uint8(g.foregroundColor), true
	}
	return source, true
}

// Draw blits clipRect of image to position, applying the current draw
// scale and anchor before clipping against the screen bounds.
func (g *GPU) Draw(image *Image, position Point2D, clipRect Rectangle2D) {
	if position.X >= Width || position.Y >= Height {
		return
	}

	if g.drawScaleX == fixedpoint.One && g.drawScaleY == fixedpoint.One {
		if g.drawAnchor != AnchorDefault {
			position = g.anchorPosition(position, clipRect)
		}
		g.drawClipped(image, position, clipRect)
		return
	}

	target := Rectangle2D{
		X:      position.X,
		Y:      position.Y,
		Width:  scaleDim(clipRect.Width, g.drawScaleX),
		Height: scaleDim(clipRect.Height, g.drawScaleY),
	}
	if g.drawAnchor != AnchorDefault {
		anchored := g.anchorPosition(Point2D{X: target.X, Y: target.Y}, target)
		target.X, target.Y = anchored.X, anchored.Y
	}
	g.DrawScaled(image, clipRect, target)
}

// drawClipped blits an unscaled clipRect-sized region of image to
// position, clipping against the screen bounds.
func (g *GPU) drawClipped(image *Image, position Point2D, clipRect Rectangle2D) {
	target := Rectangle2D{X: position.X, Y: position.Y, Width: clipRect.Width, Height: clipRect.Height}
	source := clipRect

	if target.X > Width || target.Y > Height || target.X+target.Width < 0 || target.Y+target.Height < 0 {
		return
	}

	if target.X < 0 {
		source.X -= target.X
		source.Width += target.X
		target.Width += target.X
		target.X = 0
	}
	if target.X+target.Width > Width {
		target.Width -= (target.X + target.Width) - Width
	}
	if target.Y < 0 {
		source.Y -= target.Y
		source.Height += target.Y
		target.Height += target.Y
		target.Y = 0
	}
	if target.Y+target.Height > Height {
		target.Height -= (target.Y + target.Height) - Height
	}

	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			sourceIndex := (source.Y+y)*image.Width + (source.X + x)
			color, ok := g.resolveColor(image.Data[sourceIndex])
			if !ok {
				continue
			}
			g.framebuffer[(target.Y+y)*Width+(target.X+x)] = color
		}
	}
}

// DrawScaled blits sourceRect of image into targetRect, resampling
// with a fixed-ratio nearest-neighbor step computed from the two
// rectangles' relative sizes.
func (g *GPU) DrawScaled(image *Image, sourceRect, targetRect Rectangle2D) {
	if targetRect.Width <= 0 || targetRect.Height <= 0 {
		if g.logger != nil {
			g.logger.LogVideof(debug.LogLevelWarning, "skipped scaled draw with degenerate target %dx%d", targetRect.Width, targetRect.Height)
		}
		return
	}

	target := targetRect
	source := sourceRect

	if target.X > Width || target.Y > Height || target.X+target.Width < 0 || target.Y+target.Height < 0 {
		return
	}

	pixelWidthRatio := float64(sourceRect.Width) / float64(targetRect.Width)
	pixelHeightRatio := float64(sourceRect.Height) / float64(targetRect.Height)

	if target.X < 0 {
		diff := int(float64(target.X) * pixelWidthRatio)
		source.X -= diff
		source.Width += diff
		target.Width += target.X
		target.X = 0
	}
	if target.X+target.Width > Width {
		target.Width -= (target.X + target.Width) - Width
		source.Width = int(float64(target.Width) * pixelWidthRatio)
	}
	if target.Y < 0 {
		diff := int(float64(target.Y) * pixelHeightRatio)
		source.Y -= diff
		source.Height += diff
		target.Height += target.Y
		target.Y = 0
	}
	if target.Y+target.Height > Height {
		target.Height -= (target.Y + target.Height) - Height
		source.Height = int(float64(target.Height) * pixelHeightRatio)
	}

	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			sourceX := source.X + int(float64(x)*pixelWidthRatio)
			sourceY := source.Y + int(float64(y)*pixelHeightRatio)

			sourceIndex := sourceY*image.Width + sourceX
			color, ok := g.resolveColor(image.Data[sourceIndex])
			if !ok {
				continue
			}
			g.framebuffer[(target.Y+y)*Width+(target.X+x)] = color
		}
	}
}

// BitmapFont describes a fixed-grid glyph sheet: consecutive ASCII
// codes laid out left-to-right, top-to-bottom, each cell CharWidth by
// CharHeight pixels.
type BitmapFont struct {
	Image      *Image
	CharWidth  int
	CharHeight int
}

// NewDefaultFont procedurally builds a minimal 8x8 block font covering
// the printable ASCII range: every non-space glyph is a solid filled
// cell, since no glyph artwork ships in this tree. The transparent
// color must be set to 0 for DrawText to read as text rather than
// solid bars.
func NewDefaultFont() *BitmapFont {
	const (
		columns = 16
		rows    = 8
		cell    = 8
	)

	image := &Image{Width: columns * cell, Height: rows * cell, Data: make([]uint8, columns*cell*rows*cell)}

	for code := 0; code < columns*rows; code++ {
		if code == ' ' {
			continue
		}
		column := code % columns
		row := code / columns
		for y := 1; y < cell-1; y++ {
			for x := 1; x < cell-1; x++ {
				image.Data[(row*cell+y)*image.Width+column*cell+x] = 1
			}
		}
	}

	return &BitmapFont{Image: image, CharWidth: cell, CharHeight: cell}
}

// DrawText renders text glyph by glyph starting at position, advancing
// one cell per character and wrapping to a new line on '\n'. The
// whole block is scaled and anchored as a unit before the first
// glyph is placed; anchoring is then suppressed while walking
// characters so each glyph still lands relative to that anchored
// origin rather than re-anchoring itself.
func (g *GPU) DrawText(font *BitmapFont, position Point2D, text string) {
	if font == nil || font.Image == nil || font.CharWidth == 0 {
		return
	}

	columns := font.Image.Width / font.CharWidth
	if columns == 0 {
		return
	}

	cellWidth, cellHeight := font.CharWidth, font.CharHeight
	scaled := g.drawScaleX != fixedpoint.One || g.drawScaleY != fixedpoint.One
	if scaled {
		cellWidth = scaleDim(cellWidth, g.drawScaleX)
		cellHeight = scaleDim(cellHeight, g.drawScaleY)
	}

	cursor := position
	lineStart := position.X

	savedAnchor := g.drawAnchor
	if savedAnchor != AnchorDefault {
		lineLength := 0
		for lineLength < len(text) && text[lineLength] != '\n' {
			lineLength++
		}
		cursor = g.anchorPosition(cursor, Rectangle2D{Width: cellWidth * lineLength, Height: cellHeight})
		lineStart = cursor.X
		g.drawAnchor = AnchorDefault
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '\n' {
			cursor.X = lineStart
			cursor.Y += cellHeight
			continue
		}

		// Only the low 7 bits are a valid codepoint in this atlas; bytes
		// with the high bit set advance the cursor without drawing.
		if ch <= 127 {
			code := int(ch)
			source := Rectangle2D{
				X:      (code % columns) * font.CharWidth,
				Y:      (code / columns) * font.CharHeight,
				Width:  font.CharWidth,
				Height: font.CharHeight,
			}
			g.Draw(font.Image, cursor, source)
		}
		cursor.X += cellWidth
	}

	g.drawAnchor = savedAnchor
}

// DrawRectangle flood-fills rect with a solid color, applying the
// current draw scale and anchor before clipping.
func (g *GPU) DrawRectangle(rect Rectangle2D, colorIndex uint8) {
	transformed := rect
	if g.drawScaleX != fixedpoint.One || g.drawScaleY != fixedpoint.One {
		transformed.Width = scaleDim(transformed.Width, g.drawScaleX)
		transformed.Height = scaleDim(transformed.Height, g.drawScaleY)
	}
	if g.drawAnchor != AnchorDefault {
		anchored := g.anchorPosition(Point2D{X: transformed.X, Y: transformed.Y}, transformed)
		transformed.X, transformed.Y = anchored.X, anchored.Y
	}
	g.fillRect(transformed, colorIndex)
}

// fillRect flood-fills a clipped rectangle with a solid color.
func (g *GPU) fillRect(rect Rectangle2D, colorIndex uint8) {
	r := rect

	if r.X > Width || r.Y > Height || r.X+r.Width < 0 || r.Y+r.Height < 0 {
		return
	}

	if r.X < 0 {
		r.Width += r.X
		r.X = 0
	}
	if r.X+r.Width > Width {
		r.Width -= (r.X + r.Width) - Width
	}
	if r.Y < 0 {
		r.Height += r.Y
		r.Y = 0
	}
	if r.Y+r.Height > Height {
		r.Height -= (r.Y + r.Height) - Height
	}

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			g.framebuffer[(r.Y+y)*Width+(r.X+x)] = colorIndex
		}
	}
}
