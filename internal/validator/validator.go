// Package validator implements the content-inspection + dedup gate
// (spec.md §4.1), grounded on original_source/backend/app/services/audio_validator.py.
// It is pure: no Store I/O, re-entrant, byte-identical input yields
// byte-identical output (modulo the injected Probe, which tests fix).
package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/voxpipe/voxpipe/internal/engines/probe"
)

// Config bounds the checks that are configurable (spec.md §6 env vars).
type Config struct {
	MaxFileSizeMB  int
	MinDurationSec float64
	MaxDurationSec float64
}

func DefaultConfig() Config {
	return Config{MaxFileSizeMB: 500, MinDurationSec: 3, MaxDurationSec: 14400}
}

// Result is the outcome of validating one blob.
type Result struct {
	Valid       bool
	Error       string // user-facing reason; "duplicate:<hash>" is the dedup sentinel
	DurationSec float64
	Channels    int
	FileHash    string
}

// DuplicatePrefix is the sentinel error prefix signalling a dedup hit.
const DuplicatePrefix = "duplicate:"

var allowedExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true, ".m4a": true, ".webm": true,
}

// magicSignatures lists the byte prefixes accepted for each extension,
// matching audio_validator.py::MAGIC_SIGNATURES exactly. m4a is handled
// separately (offset-4 "ftyp" check) below.
var magicSignatures = map[string][][]byte{
	".mp3":  {{0xFF, 0xFB}, {0xFF, 0xF3}, {0xFF, 0xF2}, []byte("ID3")},
	".wav":  {[]byte("RIFF")},
	".ogg":  {[]byte("OggS")},
	".flac": {[]byte("fLaC")},
	".webm": {{0x1A, 0x45, 0xDF, 0xA3}},
}

// Validate runs the ordered checks of spec.md §4.1, short-circuiting on the
// first failure. existingHashes is the growing in-memory hash set the
// caller (Ingestion façade) maintains across one batch.
func Validate(ctx context.Context, p probe.Probe, cfg Config, filename string, content []byte, existingHashes map[string]bool) Result {
	ext := strings.ToLower(filepath.Ext(filename))

	// 1. extension
	if !allowedExtensions[ext] {
		return Result{Error: fmt.Sprintf("unsupported file extension: %s", ext)}
	}

	// 2. size
	maxBytes := int64(cfg.MaxFileSizeMB) * 1024 * 1024
	if len(content) == 0 {
		return Result{Error: "file is empty"}
	}
	if int64(len(content)) > maxBytes {
		return Result{Error: fmt.Sprintf("file size exceeds limit of %d MB", cfg.MaxFileSizeMB)}
	}

	// 3. magic bytes
	if !checkMagicBytes(ext, content) {
		return Result{Error: "file content does not match its extension"}
	}

	// 4. sha-256
	sum := sha256.Sum256(content)
	fileHash := hex.EncodeToString(sum[:])

	// 5. probe
	probed, err := p.Probe(ctx, content)
	if err != nil {
		return Result{Error: err.Error(), FileHash: fileHash}
	}
	if probed.DurationSec <= 0 {
		return Result{Error: "could not determine file duration", FileHash: fileHash}
	}
	if probed.Channels < 1 {
		return Result{Error: "could not determine channel count", FileHash: fileHash}
	}

	// 6. duration bounds
	if probed.DurationSec < cfg.MinDurationSec || probed.DurationSec > cfg.MaxDurationSec {
		return Result{
			Error:       fmt.Sprintf("duration %.1fs is outside the allowed range [%.0f, %.0f]s", probed.DurationSec, cfg.MinDurationSec, cfg.MaxDurationSec),
			DurationSec: probed.DurationSec,
			Channels:    probed.Channels,
			FileHash:    fileHash,
		}
	}

	// 7. dedup
	if existingHashes != nil && existingHashes[fileHash] {
		return Result{
			Error:       DuplicatePrefix + fileHash,
			DurationSec: probed.DurationSec,
			Channels:    probed.Channels,
			FileHash:    fileHash,
		}
	}

	return Result{
		Valid:       true,
		DurationSec: probed.DurationSec,
		Channels:    probed.Channels,
		FileHash:    fileHash,
	}
}

func checkMagicBytes(ext string, content []byte) bool {
	if ext == ".m4a" {
		if len(content) < 8 {
			return false
		}
		if string(content[4:8]) == "ftyp" {
			return true
		}
		// original also accepts a handful of specific ftyp brand variants
		// at offset 4; the generic "ftyp" check above already covers them.
		return false
	}
	sigs, ok := magicSignatures[ext]
	if !ok {
		return false
	}
	for _, sig := range sigs {
		if len(content) >= len(sig) && string(content[:len(sig)]) == string(sig) {
			return true
		}
	}
	return false
}
