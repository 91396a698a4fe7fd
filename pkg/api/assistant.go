package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/jarvis/pkg/conversation"
	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/harrisonrobin/jarvis/pkg/voice"
)

func (s *Server) session(c *gin.Context) (*conversation.Session, error) {
	if s.deps.Sessions == nil {
		return nil, fmt.Errorf("%w: assistant", errNotConfigured)
	}
	return s.deps.Sessions.Get(c.GetHeader(SessionHeader)), nil
}

// speak returns nil when there is no synthesizer or it fails; a reply without
// audio is still a reply.
func (s *Server) speak(c *gin.Context, text string) *string {
	if s.deps.Speaker == nil {
		return nil
	}
	url, err := s.deps.Speaker.Speak(c.Request.Context(), text)
	if err != nil {
		s.log.Warn("speech synthesis failed", "err", err)
		return nil
	}
	return &url
}

type processTextRequest struct {
	Text          string `json:"text"`
	VoiceResponse bool   `json:"voice_response"`
}

func (s *Server) processText(c *gin.Context) {
	var req processTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "No text provided")
		return
	}
	sess, err := s.session(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	reply, err := sess.Submit(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}

	var audioURL *string
	if req.VoiceResponse {
		audioURL = s.speak(c, reply.Message)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"response":  reply,
		"audio_url": audioURL,
	})
}

func (s *Server) processVoice(c *gin.Context) {
	fh, err := c.FormFile("audio")
	if err != nil {
		s.badRequest(c, "No audio data provided")
		return
	}
	if s.deps.Recognizer == nil {
		s.fail(c, fmt.Errorf("%w: speech recognition", errNotConfigured))
		return
	}
	sess, err := s.session(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: open upload: %w", model.ErrValidation, err))
		return
	}
	defer f.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	text, err := s.deps.Recognizer.Transcribe(c.Request.Context(), f, format)
	if err != nil {
		if msg, ok := voice.Sentinel(err); ok {
			status, reason := http.StatusUnprocessableEntity, "unrecognized"
			if errors.Is(err, voice.ErrUnavailable) {
				status, reason = http.StatusServiceUnavailable, "unavailable"
			}
			s.log.Warn("speech recognition failed", "reason", reason, "err", err)
			c.JSON(status, gin.H{"status": "error", "message": msg, "reason": reason})
			return
		}
		s.fail(c, err)
		return
	}

	reply, err := sess.Submit(c.Request.Context(), text)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"text":      text,
		"response":  reply,
		"audio_url": s.speak(c, reply.Message),
	})
}

func (s *Server) clearSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		s.fail(c, fmt.Errorf("%w: assistant", errNotConfigured))
		return
	}
	s.deps.Sessions.Clear(c.GetHeader(SessionHeader))
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Conversation cleared"})
}
