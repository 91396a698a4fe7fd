// Package voice turns speech into text and back through OpenAI-compatible audio
// endpoints, and keeps the generated audio files served under /static/audio.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/jarvis/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL  = "https://api.openai.com/v1"
	DefaultSTTModel = "whisper-1"
	DefaultLanguage = "fr"
	DefaultTimeout  = 60 * time.Second
)

var (
	// ErrUnrecognized means the service answered but heard nothing usable.
	ErrUnrecognized = fmt.Errorf("%w: speech not recognized", model.ErrExternalService)
	// ErrUnavailable means the recognition service could not be reached or failed.
	ErrUnavailable = fmt.Errorf("%w: speech recognition unavailable", model.ErrExternalService)
)

const (
	unrecognizedMessage = "Désolé, je n'ai pas compris ce que vous avez dit."
	unavailableMessage  = "Désolé, je ne peux pas accéder au service de reconnaissance vocale."
)

// Sentinel returns the sentence spoken back to the user for a recognition
// failure, and false when err is neither ErrUnrecognized nor ErrUnavailable.
func Sentinel(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrUnrecognized):
		return unrecognizedMessage, true
	case errors.Is(err, ErrUnavailable):
		return unavailableMessage, true
	}
	return "", false
}

type Recognizer interface {
	// Transcribe reads a whole recording; format is the file extension ("wav",
	// "webm", ...).
	Transcribe(ctx context.Context, audio io.Reader, format string) (string, error)
}

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Voice    string
	Timeout  time.Duration
}

func (c Config) client() *openai.Client {
	oc := openai.DefaultConfig(c.APIKey)
	oc.BaseURL = c.BaseURL
	oc.HTTPClient = &http.Client{Timeout: c.Timeout}
	return openai.NewClientWithConfig(oc)
}

func (c Config) withDefaults(defaultModel string) Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// WhisperRecognizer uses the /audio/transcriptions endpoint.
type WhisperRecognizer struct {
	cfg    Config
	client *openai.Client
}

var _ Recognizer = (*WhisperRecognizer)(nil)

func NewWhisperRecognizer(cfg Config) (*WhisperRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: speech api key is not set", model.ErrValidation)
	}
	cfg = cfg.withDefaults(DefaultSTTModel)
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &WhisperRecognizer{cfg: cfg, client: cfg.client()}, nil
}

func (w *WhisperRecognizer) Transcribe(ctx context.Context, audio io.Reader, format string) (string, error) {
	if format == "" {
		format = "wav"
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		Reader:   audio,
		FilePath: "audio." + format,
		Language: w.cfg.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", recognitionError(err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnrecognized
	}
	return text, nil
}

// recognitionError sorts a failed call. Credentials, quota and server trouble are
// ErrUnavailable; any other refusal means the audio itself was not usable.
func recognitionError(err error) error {
	status := statusCode(err)
	switch {
	case status == 0, status >= 500, status == http.StatusUnauthorized,
		status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: HTTP %d: %w", ErrUnrecognized, status, err)
}

// statusCode returns the HTTP status of an API failure, or 0 when the service
// never answered.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
