// Package conversation keeps the dialogue with the language model: a rolling
// history, the window of it sent on each call, and the actions found in replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/harrisonrobin/jarvis/pkg/actions"
	"github.com/harrisonrobin/jarvis/pkg/model"
)

// DefaultWindow is how many of the most recent turns are sent to the model.
const DefaultWindow = 10

// SystemPrompt is the directive sent ahead of every window.
const SystemPrompt = `Tu es JARVIS, un assistant personnel vocal intelligent. Tu peux aider avec:
1. La gestion de tâches et de listes
2. Les rappels et notifications
3. La planification d'événements dans un calendrier
4. La prise de notes et le stockage d'informations

Réponds de manière concise, naturelle et utile, comme un assistant personnel efficace.
Si l'utilisateur te demande de créer une tâche, un rappel ou un événement, tu dois extraire
les informations pertinentes (titre, date, description, etc.) et les formater correctement.

Pour les dates et heures, utilise le format ISO 8601 (YYYY-MM-DDTHH:MM:SS).`

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Model is the external language model. Complete gets the system directive and
// the window oldest-first and returns the assistant's text.
type Model interface {
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

type Reply struct {
	Message string           `json:"message"`
	Actions []actions.Intent `json:"actions"`
}

type Session struct {
	mu        sync.Mutex
	llm       Model
	extractor actions.Extractor
	system    string
	window    int
	limit     int
	history   []Turn
	log       *slog.Logger
}

type Option func(*Session)

// WithWindow sets how many recent turns are sent to the model. Values below 1 are
// ignored.
func WithWindow(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithHistoryLimit caps the stored history to the last n turns. History is
// unbounded unless this is set.
func WithHistoryLimit(n int) Option {
	return func(s *Session) { s.limit = n }
}

func WithExtractor(e actions.Extractor) Option {
	return func(s *Session) { s.extractor = e }
}

func WithSystemPrompt(prompt string) Option {
	return func(s *Session) { s.system = prompt }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

func NewSession(llm Model, opts ...Option) *Session {
	s := &Session{
		llm:       llm,
		extractor: actions.NewPhraseExtractor(),
		system:    SystemPrompt,
		window:    DefaultWindow,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends text to the model with the recent history and returns the reply
// with its actions. If the model fails, the user turn is dropped again so history
// only ever holds complete exchanges: a failed message is not resent as context
// on the next call.
func (s *Session) Submit(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", model.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Turn{Role: RoleUser, Content: text})

	answer, err := s.llm.Complete(ctx, s.system, s.windowLocked())
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		if !errors.Is(err, model.ErrExternalService) {
			err = fmt.Errorf("%w: %w", model.ErrExternalService, err)
		}
		return nil, err
	}

	s.history = append(s.history, Turn{Role: RoleAssistant, Content: answer})
	if s.limit > 0 && len(s.history) > s.limit {
		s.history = append([]Turn(nil), s.history[len(s.history)-s.limit:]...)
	}

	intents := s.extractor.Extract(answer)
	if c, ok := s.extractor.(actions.Cleaner); ok {
		answer = c.Clean(answer)
	}
	s.log.Debug("assistant replied", "turns", len(s.history), "actions", len(intents))

	return &Reply{Message: answer, Actions: intents}, nil
}

// Clear forgets the history. The system directive is kept.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Window returns the turns the next call would send, not counting the new message.
func (s *Session) Window() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowLocked()
}

func (s *Session) windowLocked() []Turn {
	start := max(0, len(s.history)-s.window)
	return append([]Turn(nil), s.history[start:]...)
}
