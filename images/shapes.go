// Package images - Image processing utilities for region captioning.
package images

import "github.com/chewxy/math32"

// Box is an axis-aligned region in pixel coordinates.
//
// Both corners are inclusive: a box covering exactly one pixel has X1 == X2 and Y1 == Y2,
// so widths and heights are computed as X2 - X1 + 1.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// BoxFromArray builds a Box from an [x1, y1, x2, y2] quadruple.
func BoxFromArray(a [4]float32) Box {
	return Box{X1: a[0], Y1: a[1], X2: a[2], Y2: a[3]}
}

// Array returns the box as an [x1, y1, x2, y2] quadruple.
func (b Box) Array() [4]float32 {
	return [4]float32{b.X1, b.Y1, b.X2, b.Y2}
}

// Width returns the inclusive pixel width of the box.
func (b Box) Width() float32 {
	return b.X2 - b.X1 + 1
}

// Height returns the inclusive pixel height of the box.
func (b Box) Height() float32 {
	return b.Y2 - b.Y1 + 1
}

// Area returns the inclusive pixel area of the box, or 0 for degenerate boxes.
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies every coordinate of the box by s.
func (b Box) Scale(s float32) Box {
	return Box{X1: b.X1 * s, Y1: b.Y1 * s, X2: b.X2 * s, Y2: b.Y2 * s}
}

// Clip bounds every coordinate of the box to [0, width-1] x [0, height-1].
//
// Arguments:
//   - width: The image width in pixels.
//   - height: The image height in pixels.
//
// Returns:
//   - Box: The clipped box.
func (b Box) Clip(width, height int) Box {
	maxX := float32(width - 1)
	maxY := float32(height - 1)
	return Box{
		X1: math32.Max(math32.Min(b.X1, maxX), 0),
		Y1: math32.Max(math32.Min(b.Y1, maxY), 0),
		X2: math32.Max(math32.Min(b.X2, maxX), 0),
		Y2: math32.Max(math32.Min(b.Y2, maxY), 0),
	}
}

// CalculateIoU measures how much two boxes overlap as Intersection over Union.
//
// The value lies in [0, 1]: 1 for identical boxes, 0 when the boxes share no pixel. Since
// corners are inclusive, two boxes that touch on a shared edge column overlap by one pixel
// column and produce a small positive IoU.
//
//	IoU = Area(Intersection) / (Area(A) + Area(B) - Area(Intersection))
//
// The intersection corners are the maximum of the top-left corners and the minimum of the
// bottom-right corners. A non-positive intersection width or height means no overlap and
// returns 0 before any division happens.
//
// Arguments:
//   - r: The first box.
//   - o: The second box.
//
// Returns:
//   - float32: The IoU of the two boxes.
func CalculateIoU(r, o Box) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	iw := ix2 - ix1 + 1
	ih := iy2 - iy1 + 1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	return inter / union
}
