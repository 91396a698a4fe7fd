// Package auth runs the OAuth2 installed-app flow for the Google Calendar API and
// caches the resulting token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the Google API credentials file downloaded from the
	// cloud console, looked up in the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile caches the access and refresh tokens in the config directory.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the local server captures the OAuth redirect.
	LocalhostAuthPort = "6789"
)

// ErrNoCredentials means neither a credentials file nor a client id/secret pair is
// available.
var ErrNoCredentials = errors.New("no Google OAuth client credentials")

// Scopes needed to list calendars and manage events.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// Options locate the credentials and the token cache.
type Options struct {
	// Dir holds credentials.json and token.json.
	Dir string
	// ClientID and ClientSecret are used when Dir has no credentials.json.
	ClientID     string
	ClientSecret string
	Logger       *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (o Options) TokenPath() string {
	return filepath.Join(o.Dir, TokenFile)
}

// GetConfig builds the oauth2.Config from credentials.json, or from the client id
// and secret when the file is missing. Redirects always point at the local
// capture server.
func GetConfig(o Options, scopes []string) (*oauth2.Config, error) {
	log := o.logger()
	clientSecretsFile := filepath.Join(o.Dir, ClientSecretsFile)
	b, err := os.ReadFile(clientSecretsFile)
	switch {
	case err == nil:
	case os.IsNotExist(err) && o.ClientID != "" && o.ClientSecret != "":
		return &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
			RedirectURL:  fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort),
		}, nil
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: put %s in %s or set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET", ErrNoCredentials, ClientSecretsFile, o.Dir)
	default:
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsedURL, parseErr := url.Parse(config.RedirectURL)
	switch {
	case parseErr != nil:
		log.Warn("could not parse redirect URL, using it as is", "url", config.RedirectURL, "err", parseErr)
	case config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob":
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		log.Info("overriding out-of-band redirect", "url", config.RedirectURL)
	case parsedURL.Hostname() == "localhost" || parsedURL.Hostname() == "127.0.0.1":
		if parsedURL.Port() != LocalhostAuthPort {
			if parsedURL.Port() != "" {
				log.Warn("redirect port differs from the capture port, forcing it", "configured", parsedURL.Port(), "port", LocalhostAuthPort)
			}
			parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsedURL.String()
		}
	default:
		log.Warn("redirect URL is not a localhost callback", "url", config.RedirectURL)
	}
	return config, nil
}

// GetClient returns an HTTP client that refreshes its token as needed. Without a
// cached token it runs the browser authorization flow first.
func GetClient(ctx context.Context, o Options, scopes []string) (*http.Client, error) {
	log := o.logger()
	config, err := GetConfig(o, scopes)
	if err != nil {
		return nil, err
	}

	tokenFile := o.TokenPath()
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		log.Info("no cached token, starting web authorization", "path", tokenFile)
		tok, err = getTokenFromWeb(ctx, config, log)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}

	src := &savingSource{
		base: config.TokenSource(ctx, tok),
		last: tok,
		path: tokenFile,
		log:  log,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// savingSource writes refreshed tokens back to the cache file.
type savingSource struct {
	base oauth2.TokenSource
	last *oauth2.Token
	path string
	log  *slog.Logger
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		s.log.Info("token refreshed, saving", "path", s.path)
		if err := saveToken(s.path, tok); err != nil {
			s.log.Warn("could not save refreshed token", "err", err)
		}
		s.last = tok
	}
	return tok, nil
}

// getTokenFromWeb runs the authorization code flow through a local web server.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, log *slog.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentification réussie ! Vous pouvez fermer cette fenêtre.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// AccessTypeOffline makes Google return a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open the following URL in your browser to authorize Jarvis:\n%s\n", authURL)
	log.Info("waiting for authorization code", "redirect", config.RedirectURL)

	select {
	case authCode := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, authCode)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out, please try again")
	}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Reset removes the cached token so the next GetClient asks again.
func Reset(o Options) error {
	err := os.Remove(o.TokenPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file '%s': %w", o.TokenPath(), err)
	}
	return nil
}

// GetCalendarService creates an authenticated Google Calendar service.
func GetCalendarService(ctx context.Context, o Options) (*calendar.Service, error) {
	client, err := GetClient(ctx, o, Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client for Calendar API: %w", err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google Calendar service: %w", err)
	}
	return srv, nil
}
