package postprocess

import (
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ResultFileName is the name of the persisted caption file inside the output directory.
const ResultFileName = "generation_result.json"

// EncodeResults writes the result list as JSON. Missing lists are written as empty arrays;
// results is not modified.
func EncodeResults(w io.Writer, results []ImageResult) error {
	out := make([]ImageResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].CaptionLocations == nil {
			out[i].CaptionLocations = []Detection{}
		}
	}
	return json.NewEncoder(w).Encode(out)
}

// WriteResults persists the result list to dir/generation_result.json, creating dir if needed.
//
// Arguments:
//   - dir: The output directory.
//   - results: The per-image results.
//
// Returns:
//   - string: The path of the written file.
//   - error: An error if the file cannot be written.
func WriteResults(dir string, results []ImageResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output dir %s", dir)
	}

	path := filepath.Join(dir, ResultFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	if err := EncodeResults(f, results); err != nil {
		return "", errors.Wrapf(err, "encode %s", path)
	}
	return path, f.Close()
}
