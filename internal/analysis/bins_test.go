// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"spectra/pkg/utils"
)

func TestNewBinTable(t *testing.T) {
	for _, n := range []int{1, 2, 16, 64, 256} {
		table, err := NewBinTable(n, 20, 20000)
		if err != nil {
			t.Fatalf("NewBinTable(%d) error = %v", n, err)
		}
		if table.Len() != n {
			t.Fatalf("NewBinTable(%d) len = %d", n, table.Len())
		}
		if table.Min() != 20 {
			t.Errorf("NewBinTable(%d) first = %g, want 20", n, table.Min())
		}
		if n > 1 && table.Max() != 20000 {
			t.Errorf("NewBinTable(%d) last = %g, want 20000", n, table.Max())
		}
		freqs := table.Frequencies()
		for i := 1; i < len(freqs); i++ {
			if freqs[i] <= freqs[i-1] {
				t.Fatalf("NewBinTable(%d) not strictly increasing at %d: %g <= %g", n, i, freqs[i], freqs[i-1])
			}
		}
	}
}

func TestNewBinTableLogSpacing(t *testing.T) {
	table, err := NewBinTable(4, 10, 10000)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 100, 1000, 10000}
	for i, w := range want {
		if got := table.Frequency(i); math.Abs(got-w)/w > 1e-9 {
			t.Errorf("Frequency(%d) = %g, want %g", i, got, w)
		}
	}
}

func TestNewBinTableInvalid(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		min, max float64
	}{
		{"zero bins", 0, 20, 20000},
		{"zero min", 8, 0, 20000},
		{"inverted", 8, 20000, 20},
		{"equal bounds", 8, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBinTable(tt.n, tt.min, tt.max); err == nil {
				t.Errorf("NewBinTable(%d, %g, %g) expected error", tt.n, tt.min, tt.max)
			}
		})
	}
}

func TestNearest(t *testing.T) {
	table, _ := NewBinTable(64, 20, 20000)

	tests := []struct {
		hz   float64
		want int
	}{
		{1, 0},
		{20, 0},
		{1000, 36},
		{20000, 63},
		{96000, 63},
	}
	for _, tt := range tests {
		if got := table.Nearest(tt.hz); got != tt.want {
			t.Errorf("Nearest(%g) = %d, want %d", tt.hz, got, tt.want)
		}
	}
}

func TestTicks(t *testing.T) {
	table, _ := NewBinTable(64, 20, 20000)
	ticks := table.Ticks()

	wantLabels := []string{"20Hz", "50Hz", "100Hz", "200Hz", "500Hz", "1kHz", "2kHz", "5kHz", "10kHz", "20kHz"}
	if len(ticks) != len(wantLabels) {
		t.Fatalf("Ticks() len = %d, want %d: %+v", len(ticks), len(wantLabels), ticks)
	}
	for i, tick := range ticks {
		if tick.Label != wantLabels[i] {
			t.Errorf("tick %d label = %q, want %q", i, tick.Label, wantLabels[i])
		}
		if i > 0 && tick.Index <= ticks[i-1].Index {
			t.Errorf("tick %d index %d not after %d", i, tick.Index, ticks[i-1].Index)
		}
	}
	if ticks[0].Index != 0 || ticks[len(ticks)-1].Index != 63 {
		t.Errorf("tick bounds = %d..%d, want 0..63", ticks[0].Index, ticks[len(ticks)-1].Index)
	}
}

func TestTicksNarrowRangeAndCoarseTable(t *testing.T) {
	narrow, _ := NewBinTable(32, 100, 1000)
	for _, tick := range narrow.Ticks() {
		if tick.Hz < 100 || tick.Hz > 1000 {
			t.Errorf("tick %+v outside table range", tick)
		}
	}

	coarse, _ := NewBinTable(3, 20, 20000)
	seen := map[int]bool{}
	for _, tick := range coarse.Ticks() {
		if seen[tick.Index] {
			t.Errorf("duplicate tick index %d", tick.Index)
		}
		seen[tick.Index] = true
	}
}

func TestFormatHz(t *testing.T) {
	tests := map[float64]string{
		20:    "20Hz",
		500:   "500Hz",
		1000:  "1kHz",
		2500:  "2.5kHz",
		20000: "20kHz",
	}
	for hz, want := range tests {
		if got := FormatHz(hz); got != want {
			t.Errorf("FormatHz(%g) = %q, want %q", hz, got, want)
		}
	}
}

func TestBoost(t *testing.T) {
	table, _ := NewBinTable(64, 20, 20000)
	m := NewBinMapper(table, 10)

	if got := m.Boost(0); got != 1 {
		t.Errorf("Boost(0) = %g, want 1", got)
	}
	if got, want := m.Boost(50), 2.9; math.Abs(got-want) > 1e-12 {
		t.Errorf("Boost(50) = %g, want %g", got, want)
	}
	for i := 1; i < table.Len(); i++ {
		if m.Boost(i) <= m.Boost(i-1) {
			t.Fatalf("boost not increasing at %d", i)
		}
	}
}

func TestMapSelectsMaxInInterval(t *testing.T) {
	table, _ := NewBinTable(4, 10, 10000) // 10, 100, 1000, 10000
	m := NewBinMapper(table, 1)           // base 1.1

	spec := Spectrum{
		Freqs: []float64{0, 5, 10, 60, 99, 100, 100.5, 940, 5000, 9950, 10000, 12000},
		Mags:  []float64{100, 7, 3, 9, 4, 11, 50, 2, 8, 500, 1000, 9000},
	}
	got := m.Map(spec, 50, nil)

	want := []float64{
		7,                           // (0,10]: DC excluded
		11 * math.Pow(1.1, 1/50.),   // (10,100]
		50 * math.Pow(1.1, 2/50.),   // (100,1000]
		1000 * math.Pow(1.1, 3/50.), // (1000,10000]: 12000 is above the table
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("bin %d = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestMapEmptyBins(t *testing.T) {
	table, _ := NewBinTable(4, 10, 10000)
	m := NewBinMapper(table, 1)

	spec := Spectrum{
		Freqs: []float64{0, 20, 40, 60, 80},
		Mags:  []float64{1, 2, 3, 4, 5},
	}
	got := m.Map(spec, 5, nil)
	if got[0] != 0 || got[2] != 0 || got[3] != 0 {
		t.Errorf("Map() = %v, want only bin 1 set", got)
	}
	if got[1] == 0 {
		t.Error("bin 1 lost its candidates")
	}
}

func TestMapSineLandsNearTone(t *testing.T) {
	table, _ := NewBinTable(64, 20, 20000)
	m := NewBinMapper(table, 10)
	c := NewFrameComputer(Rectangular)

	samples := utils.GenerateSineWave(testWindowSize, testSampleRate, 1000, utils.FullScale16)
	spec, err := c.Compute(samples, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	raw := m.Map(spec, BinWidth(testSampleRate, testWindowLength, 64), nil)

	if got := utils.FindPeakBin(raw, 0, len(raw)-1); got != table.Nearest(1000) {
		t.Errorf("raw peak at bin %d, want %d", got, table.Nearest(1000))
	}
	if want := utils.FullScale16 * m.Boost(36); math.Abs(raw[36]-want)/want > 1e-6 {
		t.Errorf("bin 36 = %g, want %g", raw[36], want)
	}
	for i, v := range raw {
		if i != 36 && v > 1 {
			t.Errorf("bin %d = %g, expected only bin 36 to carry energy", i, v)
		}
	}
}

// Every tone between the table bounds shows up at its nearest bin or the
// one next to it, whichever window is in use.
func TestMapToneSweep(t *testing.T) {
	table, _ := NewBinTable(64, 20, 20000)
	m := NewBinMapper(table, 10)
	width := BinWidth(testSampleRate, testWindowLength, 64)

	// Every DFT line from 20Hz to just under 20kHz, plus tones between lines.
	var tones []float64
	for k := 1; k < 1000; k++ {
		tones = append(tones, float64(k)*testSampleRate/testWindowSize)
	}
	tones = append(tones, 1070, 3333, 8000, 12345, 19001)

	for _, w := range []WindowFunc{Rectangular, Hann} {
		c := NewFrameComputer(w)
		var raw []float64
		for _, hz := range tones {
			samples := utils.GenerateSineWave(testWindowSize, testSampleRate, hz, utils.FullScale16)
			spec, err := c.Compute(samples, testSampleRate)
			if err != nil {
				t.Fatal(err)
			}
			raw = m.Map(spec, width, raw)

			got, want := utils.FindPeakBin(raw, 0, len(raw)-1), table.Nearest(hz)
			if got < want-1 || got > want+1 {
				t.Errorf("%v: %gHz peaks at bin %d, want %d±1", w, hz, got, want)
			}
			if raw[got] < utils.FullScale16/4 {
				t.Errorf("%v: %gHz peak = %g, tone lost", w, hz, raw[got])
			}
		}
	}
}

func TestMapReusesDst(t *testing.T) {
	table, _ := NewBinTable(64, 20, 20000)
	m := NewBinMapper(table, 10)
	samples := utils.GenerateComplexWave(testWindowSize, testSampleRate, utils.FullScale16)
	spec, _ := NewFrameComputer(Hann).Compute(samples, testSampleRate)
	dst := make([]float64, 64)
	width := BinWidth(testSampleRate, testWindowLength, 64)

	allocs := testing.AllocsPerRun(100, func() {
		dst = m.Map(spec, width, dst)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Map, got %.1f", allocs)
	}
}

func TestBinWidth(t *testing.T) {
	if got, want := BinWidth(44100, 0.05, 64), 34.453125; math.Abs(got-want) > 1e-9 {
		t.Errorf("BinWidth = %g, want %g", got, want)
	}
}
