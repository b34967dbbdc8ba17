package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// ErrNoToken is returned when no OAuth token has been stored yet. Run the
// authorisation flow first.
var ErrNoToken = errors.New("no calendar token, run 'wt calendar auth'")

// authTimeout bounds how long Authorize waits for the browser redirect.
const authTimeout = 5 * time.Minute

// OAuthConfig reads the Google client secrets file and returns a read-only
// calendar config.
func OAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading client secrets %s: %w", credentialsPath, err)
	}
	conf, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets %s: %w", credentialsPath, err)
	}
	return conf, nil
}

// Authorize runs the loopback authorisation code flow: it listens on a free
// local port, prints the consent URL to out and waits for the redirect.
func Authorize(ctx context.Context, conf *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("authorizing: listening for redirect: %w", err)
	}
	defer ln.Close()

	c := *conf
	c.RedirectURL = fmt.Sprintf("http://%s/oauth2callback", ln.Addr().String())
	state := fmt.Sprintf("wt-%d", time.Now().UnixNano())

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			code := q.Get("code")
			if code == "" {
				http.Error(w, "authorization code missing", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorizing: redirect without code: %s", q.Get("error")):
				default:
				}
				return
			}
			fmt.Fprintln(w, "weektrack is authorized. You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(out, "Open this URL to grant read access to your calendar:\n%s\n",
		c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")))

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	select {
	case code := <-codeCh:
		tok, err := c.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("authorizing: exchanging code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorizing: %w", ctx.Err())
	}
}

// LoadToken reads a stored token. It returns ErrNoToken when the file does
// not exist.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token %s: %w", path, err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("saving token: creating directory: %w", err)
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// savingTokenSource writes refreshed tokens back to disk so the refresh
// token survives between runs.
type savingTokenSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func newSavingTokenSource(src oauth2.TokenSource, path string, initial *oauth2.Token) oauth2.TokenSource {
	return &savingTokenSource{src: src, path: path, last: initial.AccessToken}
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// HTTPClient returns a client authorised with the stored token, refreshing
// and re-saving it as needed.
func HTTPClient(ctx context.Context, conf *oauth2.Config, tokenPath string) (*http.Client, error) {
	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	src := newSavingTokenSource(conf.TokenSource(ctx, tok), tokenPath, tok)
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}
