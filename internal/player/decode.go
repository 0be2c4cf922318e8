// SPDX-License-Identifier: MIT
package player

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// FFmpegSampleRate is the rate ffmpeg resamples non-WAV tracks to.
const FFmpegSampleRate = 44100

// FFmpegPath is the ffmpeg binary used for non-WAV tracks.
var FFmpegPath = "ffmpeg"

// Decode picks a decoder by extension: WAV files are read natively,
// everything else goes through ffmpeg.
func Decode(ctx context.Context, path string) (*Track, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return DecodeWAV(path)
	}
	return DecodeFFmpeg(ctx, path)
}

// DecodeWAV reads a PCM WAV file into a mono Track.
func DecodeWAV(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("invalid wav file %s: %w", path, err)
		}
		return nil, fmt.Errorf("invalid wav file %s", path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read pcm data from %s: %w", path, err)
	}

	// 8-bit PCM is unsigned; centre it so silence is zero.
	var offset float64
	if d.BitDepth == 8 {
		offset = 128
	}
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) - offset
	}

	return NewTrack(path, samples, float64(d.SampleRate), int(d.BitDepth), int(d.NumChans))
}

// DecodeFFmpeg decodes any format ffmpeg understands to 16-bit mono PCM at
// FFmpegSampleRate.
func DecodeFFmpeg(ctx context.Context, path string) (*Track, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(FFmpegSampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// A trailing odd byte is dropped.
	samples := make([]float64, len(out)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(out[i*2:])))
	}

	return NewTrack(path, samples, FFmpegSampleRate, 16, 1)
}
