package search

import (
	"fmt"
	"testing"
)

func BenchmarkFuse(b *testing.B) {
	kw := make(map[string]float64)
	sem := make(map[string]float64)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("rec-%04d", i)
		if i%3 != 0 {
			kw[id] = float64(i) / 1000
		}
		sem[id] = float64(1000-i) / 1000
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(kw, sem, 0.4, 0.6)
	}
}
