package voice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	URLPrefix     = "/static/audio/"
	DefaultMaxAge = 24 * time.Hour
)

// AudioStore keeps synthesized replies on disk until Cleanup removes them.
type AudioStore struct {
	Dir string

	synth Synthesizer
	now   func() time.Time
	log   *slog.Logger
}

type AudioOption func(*AudioStore)

func WithAudioClock(now func() time.Time) AudioOption {
	return func(a *AudioStore) { a.now = now }
}

func WithAudioLogger(log *slog.Logger) AudioOption {
	return func(a *AudioStore) { a.log = log }
}

func NewAudioStore(dir string, synth Synthesizer, opts ...AudioOption) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	a := &AudioStore{
		Dir:   dir,
		synth: synth,
		now:   time.Now,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Speak synthesizes text into a new mp3 file and returns its URL path.
func (a *AudioStore) Speak(ctx context.Context, text string) (string, error) {
	audio, err := a.synth.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	defer audio.Close()
	return a.Save(audio)
}

// Save copies r into <uuid>.mp3 and returns /static/audio/<uuid>.mp3.
func (a *AudioStore) Save(r io.Reader) (string, error) {
	name := uuid.New().String() + ".mp3"
	path := filepath.Join(a.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return URLPrefix + name, nil
}

// Cleanup deletes mp3 files last modified more than maxAge before now and
// returns how many went away.
func (a *AudioStore) Cleanup(now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	matches, err := filepath.Glob(filepath.Join(a.Dir, "*.mp3"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.log.Warn("could not remove old audio file", "path", path, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Run calls Cleanup every interval until ctx is done.
func (a *AudioStore) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Cleanup(a.now(), maxAge)
			if err != nil {
				a.log.Warn("audio cleanup failed", "err", err)
			} else if n > 0 {
				a.log.Debug("removed old audio files", "count", n)
			}
		}
	}
}
