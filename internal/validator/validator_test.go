package validator

import (
	"context"
	"testing"

	"github.com/voxpipe/voxpipe/internal/engines/probe"
)

func validProbe() *probe.Mock {
	return &probe.Mock{Result: probe.Result{DurationSec: 10, Channels: 2}}
}

func TestValidate_RejectsUnknownExtension(t *testing.T) {
	res := Validate(context.Background(), validProbe(), DefaultConfig(), "call.txt", []byte("hello"), nil)
	if res.Valid {
		t.Fatalf("expected invalid result for .txt extension")
	}
}

func TestValidate_RejectsEmptyFile(t *testing.T) {
	res := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", []byte{}, nil)
	if res.Valid {
		t.Fatalf("expected invalid result for empty file")
	}
}

func TestValidate_RejectsBadMagicBytes(t *testing.T) {
	content := append([]byte("NOTWAV__"), make([]byte, 100)...)
	res := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", content, nil)
	if res.Valid {
		t.Fatalf("expected invalid result for mismatched magic bytes")
	}
}

func TestValidate_RejectsDurationOutOfRange(t *testing.T) {
	p := &probe.Mock{Result: probe.Result{DurationSec: 1, Channels: 1}}
	content := append([]byte("RIFF"), make([]byte, 100)...)
	res := Validate(context.Background(), p, DefaultConfig(), "call.wav", content, nil)
	if res.Valid {
		t.Fatalf("expected invalid result for too-short duration")
	}
}

func TestValidate_Success(t *testing.T) {
	content := append([]byte("RIFF"), make([]byte, 100)...)
	res := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", content, nil)
	if !res.Valid {
		t.Fatalf("expected valid result, got error: %s", res.Error)
	}
	if len(res.FileHash) != 64 {
		t.Fatalf("expected a 64-char hex sha256, got %q", res.FileHash)
	}
}

func TestValidate_DuplicateSentinel(t *testing.T) {
	content := append([]byte("RIFF"), make([]byte, 100)...)
	first := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", content, nil)
	if !first.Valid {
		t.Fatalf("expected first call valid, got error: %s", first.Error)
	}

	existing := map[string]bool{first.FileHash: true}
	second := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", content, existing)
	if second.Valid {
		t.Fatalf("expected second call to be flagged as duplicate")
	}
	if second.Error != DuplicatePrefix+first.FileHash {
		t.Fatalf("expected duplicate sentinel %q, got %q", DuplicatePrefix+first.FileHash, second.Error)
	}
	if second.DurationSec == 0 || second.Channels == 0 {
		t.Fatalf("expected duration/channels still populated on duplicate result")
	}
}

func TestValidate_Purity(t *testing.T) {
	content := append([]byte("RIFF"), make([]byte, 100)...)
	a := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", content, nil)
	b := Validate(context.Background(), validProbe(), DefaultConfig(), "call.wav", content, nil)
	if a != b {
		t.Fatalf("expected byte-identical input to yield byte-identical result: %+v vs %+v", a, b)
	}
}
