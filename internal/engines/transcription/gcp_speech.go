package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// gcpSpeech wraps cloud.google.com/go/speech/apiv1, grounded on the
// teacher's internal/clients/gcp/speech.go: same LongRunningRecognize +
// bounded-exponential-backoff retryLR shape, narrowed to the single
// transcription.Engine method this domain needs.
type gcpSpeech struct {
	log        *logger.Logger
	client     *speech.Client
	language   string
	maxRetries int
}

func NewGCPSpeech(ctx context.Context, log *logger.Logger, language string) (Engine, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcription: speech client: %w", err)
	}
	if language == "" {
		language = "ru-RU"
	}
	return &gcpSpeech{
		log:        log.With("engine", "gcp_speech"),
		client:     client,
		language:   language,
		maxRetries: 4,
	}, nil
}

func (g *gcpSpeech) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	content, err := os.ReadFile(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: read audio file: %w", err)
	}

	rcfg := &speechpb.RecognitionConfig{
		LanguageCode:          g.language,
		EnableWordTimeOffsets: true,
		Encoding:              inferEncoding(audioPath),
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: rcfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: content}},
	}

	resp, err := g.retry(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := g.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return Result{}, fmt.Errorf("transcription: longrunningrecognize: %w", err)
	}

	return parseResponse(resp, g.language), nil
}

func inferEncoding(path string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func parseResponse(resp *speechpb.LongRunningRecognizeResponse, language string) Result {
	out := Result{Language: language}
	if resp == nil {
		return out
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))
		for _, w := range alt.Words {
			out.Words = append(out.Words, Word{
				Text:     w.Word,
				StartSec: w.StartTime.AsDuration().Seconds(),
				EndSec:   w.EndTime.AsDuration().Seconds(),
			})
		}
	}
	out.FullText = full.String()
	return out
}

// retry mirrors the teacher's retryLR: exponential backoff capped at 10s,
// retrying only on codes.Unavailable/ResourceExhausted/DeadlineExceeded.
func (g *gcpSpeech) retry(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == g.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func (g *gcpSpeech) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
