package stats_test

import (
	"math/rand"
	"testing"

	"github.com/RyanBlaney/sonido-sync/algorithms/stats"
)

// 5 s against 4 s of 13-coefficient frames at a 10 ms hop
func benchmarkAlign(b *testing.B, opts ...stats.DTWOption) {
	rng := rand.New(rand.NewSource(1))
	x := randomSequence(rng, 500, 13)
	y := randomSequence(rng, 400, 13)
	dtw := stats.NewDTWAlignment(opts...)

	b.ResetTimer()
	for b.Loop() {
		if _, err := dtw.Align(x, y); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDTW_Full(b *testing.B) {
	benchmarkAlign(b)
}

func BenchmarkDTW_Band50(b *testing.B) {
	benchmarkAlign(b, stats.WithBandRadius(50))
}

func BenchmarkDTW_SingleWorker(b *testing.B) {
	benchmarkAlign(b, stats.WithWorkers(1))
}
