// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// StandardBands are the axis frequencies labelled on a visualizer.
var StandardBands = []float64{20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000}

// Tick is one labelled position on the frequency axis.
type Tick struct {
	Index int     `json:"index"` // Bin index the label sits under.
	Label string  `json:"label"` // "20Hz", "1kHz", ...
	Hz    float64 `json:"hz"`    // The band frequency being labelled.
}

// BinTable is the fixed, strictly increasing set of target frequencies the
// visualizer displays. It is immutable after construction.
type BinTable struct {
	freqs []float64
	ticks []Tick
}

// NewBinTable returns n frequencies logarithmically spaced from min to max
// inclusive. A single-bin table holds only min.
func NewBinTable(n int, min, max float64) (*BinTable, error) {
	if n < 1 {
		return nil, fmt.Errorf("bin table needs at least one bin, got %d", n)
	}
	if min <= 0 || max <= min {
		return nil, fmt.Errorf("bin table range must satisfy 0 < min < max, got %g..%g", min, max)
	}

	freqs := make([]float64, n)
	freqs[0] = min
	if n > 1 {
		lo, hi := math.Log10(min), math.Log10(max)
		step := (hi - lo) / float64(n-1)
		for i := 1; i < n-1; i++ {
			freqs[i] = math.Pow(10, lo+step*float64(i))
		}
		freqs[n-1] = max
	}

	t := &BinTable{freqs: freqs}
	t.ticks = t.buildTicks()
	return t, nil
}

// Len returns the number of bins.
func (t *BinTable) Len() int { return len(t.freqs) }

// Frequency returns the target frequency of bin i in Hz.
func (t *BinTable) Frequency(i int) float64 { return t.freqs[i] }

// Frequencies returns a copy of every bin frequency, lowest first.
func (t *BinTable) Frequencies() []float64 {
	out := make([]float64, len(t.freqs))
	copy(out, t.freqs)
	return out
}

// Min and Max return the table bounds.
func (t *BinTable) Min() float64 { return t.freqs[0] }
func (t *BinTable) Max() float64 { return t.freqs[len(t.freqs)-1] }

// Nearest returns the bin whose frequency is closest to hz on a log scale.
func (t *BinTable) Nearest(hz float64) int {
	if hz <= t.freqs[0] {
		return 0
	}
	last := len(t.freqs) - 1
	if hz >= t.freqs[last] {
		return last
	}
	i := sort.SearchFloat64s(t.freqs, hz) // freqs[i-1] < hz <= freqs[i]
	if math.Log(t.freqs[i]/hz) < math.Log(hz/t.freqs[i-1]) {
		return i
	}
	return i - 1
}

// Ticks returns the axis labels for every standard band inside the table
// range. Bands that land on an already-labelled bin are dropped.
func (t *BinTable) Ticks() []Tick {
	out := make([]Tick, len(t.ticks))
	copy(out, t.ticks)
	return out
}

func (t *BinTable) buildTicks() []Tick {
	var ticks []Tick
	for _, band := range StandardBands {
		if band < t.Min() || band > t.Max() {
			continue
		}
		idx := t.Nearest(band)
		if len(ticks) > 0 && ticks[len(ticks)-1].Index == idx {
			continue
		}
		ticks = append(ticks, Tick{Index: idx, Label: FormatHz(band), Hz: band})
	}
	return ticks
}

// FormatHz renders an axis label: "50Hz", "1kHz", "2.5kHz".
func FormatHz(hz float64) string {
	if hz < 1000 {
		return strconv.FormatFloat(hz, 'f', -1, 64) + "Hz"
	}
	return strconv.FormatFloat(hz/1000, 'f', -1, 64) + "kHz"
}

// BinWidth converts the matching width below the lowest bin (1/resolution of
// the scaled frequency unit used by the calibration constants) to Hz for a
// track with the given sample rate and window length.
func BinWidth(sampleRate, windowLength float64, resolution int) float64 {
	return sampleRate * windowLength / float64(resolution)
}

// BinMapper reduces a spectrum onto a BinTable.
type BinMapper struct {
	table  *BinTable
	boosts []float64
}

// NewBinMapper precomputes the progressive high-frequency boost
// (1 + s/10 + (s-1)/10)^(i/50) for every bin.
func NewBinMapper(table *BinTable, sensitivity float64) *BinMapper {
	base := 1 + sensitivity/10 + (sensitivity-1)/10
	boosts := make([]float64, table.Len())
	for i := range boosts {
		boosts[i] = math.Pow(base, float64(i)/50)
	}
	return &BinMapper{table: table, boosts: boosts}
}

// Table returns the table the mapper targets.
func (m *BinMapper) Table() *BinTable { return m.table }

// Boost returns the multiplier applied to bin i.
func (m *BinMapper) Boost(i int) float64 { return m.boosts[i] }

// Map writes one raw value per bin into dst (allocated if too short) and
// returns it. Bin i takes the largest magnitude whose frequency lies in
// (f_{i-1}, f_i], times its boost; bin 0 starts at f_0 - width. Every
// positive frequency up to the top bin lands in exactly one bin, and bins
// with no candidates are zero. spec.Freqs must be ascending.
func (m *BinMapper) Map(spec Spectrum, width float64, dst []float64) []float64 {
	n := m.table.Len()
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	freqs := spec.Freqs
	lo := math.Max(m.table.freqs[0]-width, 0)
	a := sort.Search(len(freqs), func(k int) bool { return freqs[k] > lo })
	for i, f := range m.table.freqs {
		b := a + sort.Search(len(freqs)-a, func(k int) bool { return freqs[a+k] > f })
		if a >= b {
			dst[i] = 0
		} else {
			dst[i] = floats.Max(spec.Mags[a:b]) * m.boosts[i]
		}
		a = b
	}
	return dst
}
