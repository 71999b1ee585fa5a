package images

import (
	"fmt"
	"testing"
)

// BenchmarkBuilder_Build measures mean subtraction, resampling and packing at the canonical
// single-scale setting for common camera resolutions.
func BenchmarkBuilder_Build(b *testing.B) {
	cfg := PyramidConfig{Scales: []int{600}, MaxSize: 1000, PixelMeans: [Channels]float32{102.9801, 115.9465, 122.7717}}
	builder, err := NewBuilder(cfg, nil)
	if err != nil {
		b.Fatal(err)
	}

	for _, size := range [][2]int{{640, 480}, {1280, 720}, {1920, 1080}} {
		im := gradientPixels(size[0], size[1])
		b.Run(fmt.Sprintf("%dx%d", size[0], size[1]), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := builder.Build(im); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
