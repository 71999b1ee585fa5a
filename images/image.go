// Package images - Pixel grid definition for processing utilities.
package images

import (
	"image"
	"io"

	_ "github.com/chai2010/webp" // registers the WebP decoder with image.Decode
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Channels is the number of color channels held by a Pixels grid.
const Channels = 3

// Pixels is a dense height x width x 3 grid of float32 values stored row-major in HWC order.
//
// Channels are kept in BGR order, the layout the captioning network was trained on.
type Pixels struct {
	// The width of the grid.
	Width int `json:"width" yaml:"width"`
	// The height of the grid.
	Height int `json:"height" yaml:"height"`
	// The pixel values, len == Width*Height*Channels.
	Data []float32 `json:"-" yaml:"-"`
}

// NewPixels allocates a zeroed grid.
func NewPixels(width, height int) *Pixels {
	return &Pixels{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*Channels),
	}
}

// At returns the value of channel c at (x, y).
func (p *Pixels) At(x, y, c int) float32 {
	return p.Data[(y*p.Width+x)*Channels+c]
}

// Set writes the value of channel c at (x, y).
func (p *Pixels) Set(x, y, c int, v float32) {
	p.Data[(y*p.Width+x)*Channels+c] = v
}

// Clone returns a deep copy of the grid.
func (p *Pixels) Clone() *Pixels {
	out := &Pixels{Width: p.Width, Height: p.Height, Data: make([]float32, len(p.Data))}
	copy(out.Data, p.Data)
	return out
}

// SubtractMean subtracts a per-channel mean from every pixel in place.
func (p *Pixels) SubtractMean(means [Channels]float32) {
	for i := 0; i < len(p.Data); i += Channels {
		p.Data[i] -= means[0]
		p.Data[i+1] -= means[1]
		p.Data[i+2] -= means[2]
	}
}

// Validate reports whether the grid shape and backing slice agree.
func (p *Pixels) Validate() error {
	if p == nil {
		return errors.New("nil pixels")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return errors.Errorf("invalid pixel grid size %dx%d", p.Width, p.Height)
	}
	if len(p.Data) != p.Width*p.Height*Channels {
		return errors.Errorf(
			"pixel data length %d does not match %dx%dx%d",
			len(p.Data), p.Width, p.Height, Channels,
		)
	}
	return nil
}

// FromImage converts a decoded image into a BGR float grid with values in [0, 255].
//
// Arguments:
//   - img: The decoded image.
//
// Returns:
//   - *Pixels: The converted grid.
func FromImage(img image.Image) *Pixels {
	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	p := NewPixels(bounds.Dx(), bounds.Dy())

	for y := 0; y < p.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < p.Width; x++ {
			src := row[x*4:]
			dst := p.Data[(y*p.Width+x)*Channels:]
			dst[0] = float32(src[2])
			dst[1] = float32(src[1])
			dst[2] = float32(src[0])
		}
	}

	return p
}

// Decode reads an encoded image (JPEG, PNG, WebP, BMP, GIF, TIFF) into a BGR float grid.
func Decode(r io.Reader) (*Pixels, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return FromImage(img), nil
}

// Load opens an image file into a BGR float grid.
//
// Arguments:
//   - path: The path to the image file.
//
// Returns:
//   - *Pixels: The decoded grid.
//   - error: An error if the file cannot be opened or decoded.
func Load(path string) (*Pixels, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	return FromImage(img), nil
}
