package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// frameTimings collects frame durations in microseconds.
type frameTimings struct {
	us []float64
}

func newFrameTimings(capacity int) *frameTimings {
	if capacity <= 0 {
		capacity = 1024
	}
	return &frameTimings{us: make([]float64, 0, capacity)}
}

func (t *frameTimings) add(d time.Duration) {
	t.us = append(t.us, float64(d.Microseconds()))
}

type timingSummary struct {
	Frames int
	Mean   float64
	StdDev float64
	P50    float64
	P99    float64
	Max    float64
}

func (t *frameTimings) summary() timingSummary {
	s := timingSummary{Frames: len(t.us)}
	if s.Frames == 0 {
		return s
	}
	sorted := append([]float64(nil), t.us...)
	sort.Float64s(sorted)
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	if s.Frames == 1 {
		s.StdDev = 0
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	s.Max = sorted[len(sorted)-1]
	return s
}

func (t *frameTimings) print(w io.Writer) {
	s := t.summary()
	if s.Frames == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "frames: %d  mean: %.1fus  stddev: %.1fus  p50: %.0fus  p99: %.0fus  max: %.0fus\n",
		s.Frames, s.Mean, s.StdDev, s.P50, s.P99, s.Max)
}
