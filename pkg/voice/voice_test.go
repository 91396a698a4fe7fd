package voice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/jarvis/pkg/model"
)

func newServer(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newRecognizer(t *testing.T, h http.HandlerFunc) *WhisperRecognizer {
	t.Helper()
	r, err := NewWhisperRecognizer(Config{APIKey: "k", BaseURL: newServer(t, h)})
	if err != nil {
		t.Fatalf("NewWhisperRecognizer: %v", err)
	}
	return r
}

func TestTranscribe(t *testing.T) {
	r := newRecognizer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if req.FormValue("model") != DefaultSTTModel || req.FormValue("language") != "fr" {
			t.Errorf("model = %q, language = %q", req.FormValue("model"), req.FormValue("language"))
		}
		if req.FormValue("response_format") != "json" {
			t.Errorf("response_format = %q", req.FormValue("response_format"))
		}
		f, hdr, err := req.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "audio.webm" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		b, _ := io.ReadAll(f)
		if string(b) != "RIFF" {
			t.Errorf("audio = %q", b)
		}
		w.Write([]byte(`{"text":"  Ajoute acheter du lait  "}`))
	})

	text, err := r.Transcribe(context.Background(), strings.NewReader("RIFF"), "webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Ajoute acheter du lait" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"empty transcription", http.StatusOK, `{"text":"   "}`, ErrUnrecognized, unrecognizedMessage},
		{"undecodable audio", http.StatusBadRequest, `{"error":{"message":"could not decode"}}`, ErrUnrecognized, unrecognizedMessage},
		{"server error", http.StatusBadGateway, `upstream`, ErrUnavailable, unavailableMessage},
		{"bad key", http.StatusUnauthorized, `nope`, ErrUnavailable, unavailableMessage},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"requests"}}`, ErrUnavailable, unavailableMessage},
		{"unsupported format", http.StatusUnsupportedMediaType, `bad file`, ErrUnrecognized, unrecognizedMessage},
		{"garbled answer", http.StatusOK, `<html>`, ErrUnavailable, unavailableMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecognizer(t, func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := r.Transcribe(context.Background(), strings.NewReader("x"), "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, model.ErrExternalService) {
				t.Errorf("err = %v, want it to wrap ErrExternalService", err)
			}
			msg, ok := Sentinel(err)
			if !ok || msg != tt.message {
				t.Errorf("Sentinel = %q, %v", msg, ok)
			}
		})
	}
}

func TestTranscribeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r, err := NewWhisperRecognizer(Config{APIKey: "k", BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Transcribe(context.Background(), strings.NewReader("x"), "wav")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSentinelIgnoresOtherErrors(t *testing.T) {
	if _, ok := Sentinel(model.ErrExternalService); ok {
		t.Error("a generic external failure is not a recognition sentinel")
	}
	if _, ok := Sentinel(nil); ok {
		t.Error("nil is not a recognition sentinel")
	}
}

func TestMissingAPIKey(t *testing.T) {
	if _, err := NewWhisperRecognizer(Config{}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("recognizer err = %v", err)
	}
	if _, err := NewSpeechSynthesizer(Config{}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("synthesizer err = %v", err)
	}
}

func newSynthesizer(t *testing.T, h http.HandlerFunc) *SpeechSynthesizer {
	t.Helper()
	s, err := NewSpeechSynthesizer(Config{APIKey: "k", BaseURL: newServer(t, h) + "/"})
	if err != nil {
		t.Fatalf("NewSpeechSynthesizer: %v", err)
	}
	return s
}

func TestSpeak(t *testing.T) {
	synth := newSynthesizer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", req.URL.Path)
		}
		b, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(b), `"voice":"alloy"`) || !strings.Contains(string(b), `"input":"Bonjour"`) {
			t.Errorf("body = %s", b)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3mp3"))
	})

	dir := t.TempDir()
	store, err := NewAudioStore(dir, synth)
	if err != nil {
		t.Fatal(err)
	}
	url, err := store.Speak(context.Background(), "Bonjour")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if !strings.HasPrefix(url, URLPrefix) || !strings.HasSuffix(url, ".mp3") {
		t.Fatalf("url = %q", url)
	}
	b, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, URLPrefix)))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "ID3mp3" {
		t.Errorf("file = %q", b)
	}
}

func TestSynthesizeFailure(t *testing.T) {
	synth := newSynthesizer(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	if _, err := synth.Synthesize(context.Background(), "Bonjour"); !errors.Is(err, model.ErrExternalService) {
		t.Errorf("err = %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), "  "); !errors.Is(err, model.ErrValidation) {
		t.Errorf("blank text err = %v", err)
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAudioStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	write := func(name string, age time.Duration) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, now.Add(-age), now.Add(-age)); err != nil {
			t.Fatal(err)
		}
		return p
	}
	old := write("old.mp3", 25*time.Hour)
	fresh := write("fresh.mp3", time.Hour)
	other := write("notes.txt", 48*time.Hour)

	n, err := store.Cleanup(now, 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d files, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old.mp3 should be gone")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should remain: %v", filepath.Base(p), err)
		}
	}
}
