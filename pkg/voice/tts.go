package voice

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harrisonrobin/jarvis/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultTTSModel = "tts-1"
	DefaultVoice    = "alloy"
)

type Synthesizer interface {
	// Synthesize returns an mp3 stream the caller must close.
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// SpeechSynthesizer uses the /audio/speech endpoint.
type SpeechSynthesizer struct {
	cfg    Config
	client *openai.Client
}

var _ Synthesizer = (*SpeechSynthesizer)(nil)

func NewSpeechSynthesizer(cfg Config) (*SpeechSynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: speech api key is not set", model.ErrValidation)
	}
	cfg = cfg.withDefaults(DefaultTTSModel)
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return &SpeechSynthesizer{cfg: cfg, client: cfg.client()}, nil
}

func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to say", model.ErrValidation)
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		if status := statusCode(err); status != 0 {
			return nil, fmt.Errorf("%w: speech returned HTTP %d: %w", model.ErrExternalService, status, err)
		}
		return nil, fmt.Errorf("%w: speech request: %w", model.ErrExternalService, err)
	}
	return resp.ReadCloser, nil
}
