package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// denseValue wraps a float32 dense tensor as an ONNX Runtime tensor without copying.
func denseValue(t *tensor.Dense) (*ort.Tensor[float32], error) {
	if t == nil {
		return nil, errors.New("nil input tensor")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input tensor dtype %v, expected float32", t.Dtype())
	}
	dims := make([]int64, len(t.Shape()))
	for i, d := range t.Shape() {
		dims[i] = int64(d)
	}
	return floatValue(data, dims...)
}

// floatValue wraps data with the given shape.
func floatValue(data []float32, dims ...int64) (*ort.Tensor[float32], error) {
	v, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, errors.Wrapf(err, "create tensor %v", dims)
	}
	return v, nil
}

// infoValue encodes the (1, 3) image info row.
func infoValue(info ImageInfo) (*ort.Tensor[float32], error) {
	row := info.Array()
	return floatValue(row[:], 1, 3)
}

// roisValue encodes regions as an (R, 5) tensor of [level, x1, y1, x2, y2].
func roisValue(rois []RoI) (*ort.Tensor[float32], error) {
	data := make([]float32, 0, len(rois)*5)
	for _, r := range rois {
		data = append(data, float32(r.Level), r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2)
	}
	return floatValue(data, int64(len(rois)), 5)
}

// floatOutput reads a float32 output and its shape. The returned slice is a copy.
func floatOutput(v ort.Value, name string) ([]float32, []int64, error) {
	if v == nil {
		return nil, nil, errors.Wrap(ErrMissingOutput, name)
	}
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "output %s is not a float32 tensor", name)
	}
	src := t.GetData()
	data := make([]float32, len(src))
	copy(data, src)
	return data, []int64(t.GetShape()), nil
}

// matrixOutput reads a 2-D output with the expected row count and returns it as a dense tensor.
func matrixOutput(v ort.Value, name string, rows int) (*tensor.Dense, error) {
	data, shape, err := floatOutput(v, name)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 || int(shape[0]) != rows {
		return nil, errors.Wrapf(ErrShapeMismatch, "output %s shape %v for %d regions", name, shape, rows)
	}
	return tensor.New(tensor.WithShape(rows, int(shape[1])), tensor.WithBacking(data)), nil
}

// decodeRois parses an (R, 5) rois output.
func decodeRois(data []float32, shape []int64) ([]RoI, error) {
	if len(shape) != 2 || shape[1] != 5 {
		return nil, errors.Wrapf(ErrShapeMismatch, "rois shape %v", shape)
	}
	rois := make([]RoI, shape[0])
	for i := range rois {
		row := data[i*5 : i*5+5]
		rois[i].Level = int(row[0])
		rois[i].Box.X1, rois[i].Box.Y1, rois[i].Box.X2, rois[i].Box.Y2 = row[1], row[2], row[3], row[4]
	}
	return rois, nil
}

// rowsOf splits a row-major matrix into rows.
func rowsOf(data []float32, cols int) [][]float32 {
	if cols <= 0 {
		return nil
	}
	rows := make([][]float32, len(data)/cols)
	for i := range rows {
		rows[i] = data[i*cols : (i+1)*cols]
	}
	return rows
}

