// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"runtime"
	"sort"
	"sync"

	"github.com/nvr-ai/go-densecap/images"
)

// DefaultIoUThreshold is the suppression overlap of the canonical test configuration.
const DefaultIoUThreshold = 0.3

// DefaultParallelThreshold is the candidate count below which the serial suppressor is used.
const DefaultParallelThreshold = 10000

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold      float32 `json:"iou_threshold" yaml:"iou_threshold" mapstructure:"iou_threshold"`                // Overlap above which a lower scored box is suppressed.
	ClassAware        bool    `json:"class_aware" yaml:"class_aware" mapstructure:"class_aware"`                      // If true, suppress only within same class.
	ForceCPU          bool    `json:"force_cpu" yaml:"force_cpu" mapstructure:"force_cpu"`                            // If true, always use the serial suppressor.
	ParallelThreshold int     `json:"parallel_threshold" yaml:"parallel_threshold" mapstructure:"parallel_threshold"` // Candidate count at which the worker pool takes over.
	NumWorkers        int     `json:"num_workers" yaml:"num_workers" mapstructure:"num_workers"`                      // Number of goroutines for parallel IoU computation.
}

// DefaultNMSConfig returns a configuration with the given threshold and default dispatch.
func DefaultNMSConfig(iouThreshold float32) *NMSConfig {
	return &NMSConfig{
		IoUThreshold:      iouThreshold,
		ParallelThreshold: DefaultParallelThreshold,
		NumWorkers:        runtime.NumCPU(),
	}
}

// useParallel reports whether n candidates should go to the worker pool.
func (c *NMSConfig) useParallel(n int) bool {
	if c.ForceCPU || c.NumWorkers <= 1 {
		return false
	}
	threshold := c.ParallelThreshold
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}
	return n >= threshold
}

// Suppress runs greedy Non-Maximum Suppression and returns the indices of the kept detections
// in the order they were kept (descending score, ties by original index).
//
// Arguments:
//   - detections: Detections in any order.
//   - config: NMS configuration.
//
// Returns:
//   - []int: Indices into detections of the surviving boxes.
func Suppress(detections []Result, config *NMSConfig) []int {
	n := len(detections)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return detections[order[a]].Score > detections[order[b]].Score
	})

	sorted := make([]Result, n)
	for i, idx := range order {
		sorted[i] = detections[idx]
	}

	var kept []int
	if config.useParallel(n) {
		kept = parallelKeep(sorted, config)
	} else {
		kept = greedyKeep(sorted, config)
	}

	for i, k := range kept {
		kept[i] = order[k]
	}
	return kept
}

// ApplyNMS filters overlapping detections and returns the survivors in kept order.
//
// Arguments:
//   - detections: Detections in any order.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyNMS(detections []Result, config *NMSConfig) []Result {
	kept := Suppress(detections, config)
	if kept == nil {
		return nil
	}

	filtered := make([]Result, len(kept))
	for i, k := range kept {
		filtered[i] = detections[k]
	}
	return filtered
}

// suppresses reports whether anchor eliminates candidate.
func suppresses(anchor, candidate Result, config *NMSConfig) bool {
	if config.ClassAware && anchor.Class != candidate.Class {
		return false
	}
	return images.CalculateIoU(anchor.Box, candidate.Box) > config.IoUThreshold
}

// greedyKeep performs standard greedy NMS over detections sorted by descending score.
func greedyKeep(sorted []Result, config *NMSConfig) []int {
	n := len(sorted)
	kept := make([]int, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		kept = append(kept, i)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if suppresses(anchor, sorted[j], config) {
				used[j] = true
			}
		}
	}

	return kept
}

// parallelKeep produces the same result as greedyKeep but splits each anchor's IoU sweep
// across a fixed worker pool. Workers own disjoint index ranges of used, and the anchor loop
// waits for every sweep before reading used again.
func parallelKeep(sorted []Result, config *NMSConfig) []int {
	n := len(sorted)
	kept := make([]int, 0, n)
	used := make([]bool, n)

	workers := config.NumWorkers

	type sweep struct {
		anchor   int
		from, to int
	}
	jobs := make(chan sweep, workers)

	var pool, round sync.WaitGroup
	for w := 0; w < workers; w++ {
		pool.Add(1)
		go func() {
			defer pool.Done()
			for task := range jobs {
				anchor := sorted[task.anchor]
				for j := task.from; j < task.to; j++ {
					if !used[j] && suppresses(anchor, sorted[j], config) {
						used[j] = true
					}
				}
				round.Done()
			}
		}()
	}

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		kept = append(kept, i)
		used[i] = true

		rest := n - (i + 1)
		if rest == 0 {
			break
		}
		chunk := (rest + workers - 1) / workers
		for from := i + 1; from < n; from += chunk {
			round.Add(1)
			jobs <- sweep{anchor: i, from: from, to: min(from+chunk, n)}
		}
		round.Wait()
	}

	close(jobs)
	pool.Wait()

	return kept
}

// CollateNMS applies NMS to every class of every image.
//
// The input is indexed [class][image] and each cell is processed independently with the
// serial suppressor, since per-cell candidate counts stay small. Cells that are empty are
// left empty.
//
// Arguments:
//   - all: Detections grouped by class, then by image.
//   - iouThreshold: The overlap threshold.
//
// Returns:
//   - [][][]Result: The surviving detections with the same grouping.
func CollateNMS(all [][][]Result, iouThreshold float32) [][][]Result {
	config := DefaultNMSConfig(iouThreshold)
	config.ForceCPU = true

	out := make([][][]Result, len(all))
	for c, perImage := range all {
		out[c] = make([][]Result, len(perImage))
		for i, dets := range perImage {
			if len(dets) == 0 {
				continue
			}
			out[c][i] = ApplyNMS(dets, config)
		}
	}
	return out
}
