// Package audio decodes stereo PCM for the channel_split diarization
// strategy (spec.md §4.4), grounded on original_source's
// diarization.py::_load_stereo: shell out to ffmpeg for raw f32le samples
// rather than link a CGo audio codec.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"time"
)

const sampleRate = 16000

// ChannelAudio holds decoded PCM for each of a stereo file's two channels.
type ChannelAudio struct {
	Left, Right []float32
	SampleRate  int
}

// Decoder is implemented by both the real ffmpeg-backed binding and the
// deterministic mock used in tests.
type Decoder interface {
	DecodeStereo(ctx context.Context, audioPath string) (ChannelAudio, error)
}

type ffmpegDecoder struct {
	timeout time.Duration
}

func NewFFmpegDecoder() Decoder {
	return &ffmpegDecoder{timeout: 5 * time.Minute}
}

// DecodeStereo runs `ffmpeg -i <path> -ar 16000 -ac 2 -f f32le pipe:1` and
// de-interleaves the resulting [L0,R0,L1,R1,...] samples, matching
// _load_stereo exactly.
func (d *ffmpegDecoder) DecodeStereo(ctx context.Context, audioPath string) (ChannelAudio, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", audioPath,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "2",
		"-f", "f32le",
		"-loglevel", "quiet",
		"pipe:1",
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return ChannelAudio{}, fmt.Errorf("audio: ffmpeg decode: %w", err)
	}

	raw := stdout.Bytes()
	numFrames := len(raw) / 8 // 2 channels * 4 bytes/float32
	left := make([]float32, 0, numFrames)
	right := make([]float32, 0, numFrames)
	for i := 0; i+8 <= len(raw); i += 8 {
		left = append(left, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:i+4])))
		right = append(right, math.Float32frombits(binary.LittleEndian.Uint32(raw[i+4:i+8])))
	}

	return ChannelAudio{Left: left, Right: right, SampleRate: sampleRate}, nil
}
