// Package util - Image manifests and directory listings.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/nvr-ai/go-densecap/models/densecap"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestImage is one image of a manifest.
type ManifestImage struct {
	// ID is the image identifier written to the results.
	ID int `yaml:"id"`
	// Path is the image path, relative to the manifest root unless absolute.
	Path string `yaml:"path"`
	// Boxes are candidate regions in image coordinates.
	Boxes [][4]float32 `yaml:"boxes"`
	// GTClasses holds one class per box. Boxes with class 0 are proposals, the rest are
	// ground truth and never detected. When empty every box is a proposal.
	GTClasses []int `yaml:"gt_classes"`
}

// Manifest lists the images of a run. It implements densecap.ImageDB.
type Manifest struct {
	// DBName identifies the image set in logs.
	DBName string `yaml:"name"`
	// Root is prepended to relative image paths.
	Root string `yaml:"root"`
	// Images are processed in order.
	Images []ManifestImage `yaml:"images"`
}

// Name returns the image set name.
func (m *Manifest) Name() string {
	return m.DBName
}

// Len returns the number of images.
func (m *Manifest) Len() int {
	return len(m.Images)
}

// Entry resolves the path and the proposals of the i-th image.
//
// Arguments:
//   - i: The image index.
//
// Returns:
//   - densecap.ImageEntry: The image.
//   - error: An error if the index is out of range or the classes do not match the boxes.
func (m *Manifest) Entry(i int) (densecap.ImageEntry, error) {
	if i < 0 || i >= len(m.Images) {
		return densecap.ImageEntry{}, errors.Errorf("image index %d out of range [0, %d)", i, len(m.Images))
	}
	img := m.Images[i]

	if len(img.GTClasses) > 0 && len(img.GTClasses) != len(img.Boxes) {
		return densecap.ImageEntry{}, errors.Errorf(
			"image %d has %d gt_classes for %d boxes", img.ID, len(img.GTClasses), len(img.Boxes),
		)
	}

	proposals := make([]images.Box, 0, len(img.Boxes))
	for j, b := range img.Boxes {
		if len(img.GTClasses) > 0 && img.GTClasses[j] != 0 {
			continue
		}
		proposals = append(proposals, images.BoxFromArray(b))
	}

	path := img.Path
	if m.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(m.Root, path)
	}

	return densecap.ImageEntry{ID: img.ID, Path: path, Proposals: proposals}, nil
}

// LoadManifest reads a YAML manifest. A relative root is resolved against the manifest's
// directory.
//
// Arguments:
//   - path: The manifest file.
//
// Returns:
//   - *Manifest: The manifest.
//   - error: An error if the file cannot be read or parsed.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parse manifest %s", path)
	}
	if m.DBName == "" {
		m.DBName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if !filepath.IsAbs(m.Root) {
		m.Root = filepath.Join(filepath.Dir(path), m.Root)
	}
	return &m, nil
}

// imageExtensions are the file types picked up by LoadDirectory.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

// LoadDirectory builds a manifest without proposals from every image file in dir, for use
// with networks that propose their own regions. Files named with a number (or frame-<n>)
// use it as their ID and sort by it, the rest are numbered after them in name order.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - *Manifest: The manifest.
//   - error: Error if listing fails.
func LoadDirectory(dir string) (*Manifest, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	type candidate struct {
		name     string
		id       int
		numbered bool
	}
	var found []candidate
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(file.Name()))
		if !imageExtensions[ext] {
			continue
		}
		stem := strings.TrimPrefix(strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())), "frame-")
		id, convErr := strconv.Atoi(stem)
		found = append(found, candidate{name: file.Name(), id: id, numbered: convErr == nil})
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.numbered != b.numbered {
			return a.numbered
		}
		if a.numbered {
			return a.id < b.id
		}
		return a.name < b.name
	})

	m := &Manifest{DBName: filepath.Base(dir), Root: dir}
	next := 0
	for _, c := range found {
		if c.numbered && c.id >= next {
			next = c.id + 1
		}
	}
	for _, c := range found {
		id := c.id
		if !c.numbered {
			id = next
			next++
		}
		m.Images = append(m.Images, ManifestImage{ID: id, Path: c.name})
	}
	return m, nil
}
