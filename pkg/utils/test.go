// Package utils holds signal generators and a recording transport shared by
// tests across the module.
package utils

import (
	"math"
	"sync"
)

// FullScale16 is the largest positive 16-bit PCM sample value. Decoded tracks
// keep their integer scale, so test signals use it too.
const FullScale16 = math.MaxInt16

// RecordingTransport implements transport.Transport for tests by keeping every
// message it is sent.
type RecordingTransport struct {
	mu       sync.Mutex
	messages []any
	closed   bool
}

// Send stores the message for later inspection instead of transmitting.
func (m *RecordingTransport) Send(data any) error {
	m.mu.Lock()
	m.messages = append(m.messages, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *RecordingTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *RecordingTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.messages))
	copy(out, m.messages)
	return out
}

// Last returns the most recent message, or nil.
func (m *RecordingTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

// Closed reports whether Close was called.
func (m *RecordingTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateComplexWave returns a 440Hz fundamental plus two harmonics scaled to
// amplitude.
func GenerateComplexWave(size int, sampleRate, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = signal * amplitude
	}
	return buffer
}

// GenerateSineWave returns a pure tone at frequency with the given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*frequency*t) * amplitude
	}
	return buffer
}

// Quantize rounds samples to ints for writing PCM fixtures.
func Quantize(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(math.Round(s))
	}
	return out
}

// FindPeakBin returns the index of the largest value in magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
