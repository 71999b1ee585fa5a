// Package cv - OpenCV backed image loading and resampling.
//
// The package mirrors the cv2 preprocessing path the captioning networks are trained with:
// images are read in BGR order and rescaled with bilinear interpolation on 32-bit float data.
package cv

import (
	"image"
	"runtime"
	"unsafe"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Load reads an image file with OpenCV into a BGR float grid.
//
// Arguments:
//   - path: The path to the image file.
//
// Returns:
//   - *images.Pixels: The decoded grid.
//   - error: An error if the file cannot be read.
func Load(path string) (*images.Pixels, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.Errorf("failed to read image %s", path)
	}

	return FromMat(mat)
}

// FromMat converts an 8-bit 3-channel Mat into a float grid.
func FromMat(mat gocv.Mat) (*images.Pixels, error) {
	if mat.Channels() != images.Channels {
		return nil, errors.Errorf("expected %d channels, got %d", images.Channels, mat.Channels())
	}

	floats := gocv.NewMat()
	defer floats.Close()
	mat.ConvertTo(&floats, gocv.MatTypeCV32FC3)

	return copyFloatMat(floats)
}

// MatResampler rescales grids with gocv.Resize and bilinear interpolation, matching
// cv2.resize(im, None, fx=scale, fy=scale, interpolation=cv2.INTER_LINEAR).
type MatResampler struct{}

// Resample implements images.Resampler.
func (MatResampler) Resample(src *images.Pixels, scale float32) (*images.Pixels, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, errors.Errorf("scale must be positive, got %f", scale)
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&src.Data[0])), len(src.Data)*4)
	mat, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV32FC3, raw)
	if err != nil {
		return nil, errors.Wrap(err, "wrap pixels in mat")
	}
	defer mat.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Resize(mat, &dst, image.Point{}, float64(scale), float64(scale), gocv.InterpolationLinear)
	runtime.KeepAlive(src.Data)

	return copyFloatMat(dst)
}

func copyFloatMat(mat gocv.Mat) (*images.Pixels, error) {
	data, err := mat.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read float mat")
	}

	p := images.NewPixels(mat.Cols(), mat.Rows())
	if len(data) != len(p.Data) {
		return nil, errors.Errorf("mat holds %d values, expected %d", len(data), len(p.Data))
	}
	copy(p.Data, data)

	return p, nil
}
