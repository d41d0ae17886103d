package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ffprobeProbe shells out to ffprobe, matching original_source's
// audio_validator.py::_probe_audio subprocess approach.
type ffprobeProbe struct {
	binary  string
	timeout time.Duration
}

func NewFFProbe(binary string, timeout time.Duration) Probe {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ffprobeProbe{binary: binary, timeout: timeout}
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Channels  int    `json:"channels"`
	} `json:"streams"`
}

func (p *ffprobeProbe) Probe(ctx context.Context, content []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "voxpipe-probe-*")
	if err != nil {
		return Result{}, fmt.Errorf("probe: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(content); err != nil {
		return Result{}, fmt.Errorf("probe: write temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		tmp.Name(),
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("probe: timed out")
		}
		return Result{}, fmt.Errorf("file could not be decoded")
	}

	var parsed ffprobeFormat
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return Result{}, fmt.Errorf("probe: could not parse ffprobe output: %w", err)
	}

	var durationSec float64
	if parsed.Format.Duration != "" {
		if _, err := fmt.Sscanf(parsed.Format.Duration, "%f", &durationSec); err != nil {
			return Result{}, fmt.Errorf("could not determine file duration")
		}
	}
	if durationSec <= 0 {
		return Result{}, fmt.Errorf("could not determine file duration")
	}

	channels := 0
	for _, s := range parsed.Streams {
		if s.CodecType == "audio" && s.Channels > channels {
			channels = s.Channels
		}
	}
	if channels <= 0 {
		return Result{}, fmt.Errorf("could not determine channel count")
	}

	return Result{DurationSec: durationSec, Channels: channels}, nil
}
