package captcha

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/config"
)

// fakePage scripts the browser surface the solver touches.
type fakePage struct {
	evalResults map[string]any
	sentKeys    map[string]string
	screenshot  []byte
	evalErr     error
}

func newFakePage() *fakePage {
	return &fakePage{
		evalResults: map[string]any{},
		sentKeys:    map[string]string{},
		screenshot:  []byte("png-bytes"),
	}
}

func (f *fakePage) Evaluate(_ context.Context, script string, res any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	for needle, val := range f.evalResults {
		if strings.Contains(script, needle) {
			switch out := res.(type) {
			case *bool:
				*out = val.(bool)
			case *string:
				*out = val.(string)
			}
			return nil
		}
	}
	// Unmatched scripts resolve to the zero value.
	return nil
}

func (f *fakePage) Screenshot(_ context.Context, _ string) ([]byte, error) {
	return f.screenshot, nil
}

func (f *fakePage) SendKeys(_ context.Context, selector, text string) error {
	f.sentKeys[selector] = text
	return nil
}

func solverConfig(baseURL string) config.CaptchaConfig {
	return config.CaptchaConfig{
		Enabled:      true,
		APIKey:       "service-key",
		BaseURL:      baseURL,
		PollInterval: 5 * time.Millisecond,
		SolveTimeout: 2 * time.Second,
	}
}

// fakeService emulates the submit/poll protocol of the solving provider.
func fakeService(t *testing.T, notReadyPolls int, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.Form.Get("key"))
		fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "task-42", r.URL.Query().Get("id"))
		if int(polls.Add(1)) <= notReadyPolls {
			fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
			return
		}
		fmt.Fprintf(w, `{"status":1,"request":%q}`, answer)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestDetectFindsRecaptchaBeforeImage(t *testing.T) {
	page := newFakePage()
	page.evalResults[`.g-recaptcha`] = true
	page.evalResults[`img[src*=`] = true

	typ, err := Detect(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, TypeRecaptcha, typ)
}

func TestDetectNoneWhenPageIsClean(t *testing.T) {
	typ, err := Detect(context.Background(), newFakePage())
	require.NoError(t, err)
	assert.Equal(t, TypeNone, typ)
}

func TestSolveRecaptchaPollsUntilReady(t *testing.T) {
	srv, polls := fakeService(t, 2, "solved-token")
	page := newFakePage()
	page.evalResults["data-sitekey"] = "site-key-abc"
	page.evalResults["g-recaptcha-response"] = true

	s := NewSolver(solverConfig(srv.URL), zap.NewNop())
	res := s.Solve(context.Background(), page, TypeRecaptcha, "https://example.org/contact", "")

	assert.True(t, res.Encountered)
	assert.True(t, res.Solved)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestSolveImageTypesAnswer(t *testing.T) {
	srv, _ := fakeService(t, 0, "XK42P")
	page := newFakePage()

	s := NewSolver(solverConfig(srv.URL), zap.NewNop())
	res := s.Solve(context.Background(), page, TypeImage, "https://example.org", "")

	assert.True(t, res.Solved)
	assert.Equal(t, "XK42P", page.sentKeys[`input[name*="captcha" i]`])
}

func TestSolveTimeoutIsUnsolvedNotError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := solverConfig(srv.URL)
	cfg.SolveTimeout = 50 * time.Millisecond
	page := newFakePage()
	page.evalResults["data-sitekey"] = "site-key-abc"

	s := NewSolver(cfg, zap.NewNop())
	res := s.Solve(context.Background(), page, TypeRecaptcha, "https://example.org", "")

	assert.True(t, res.Encountered)
	assert.False(t, res.Solved)
	assert.Contains(t, res.Detail, "timed out")
}

func TestSolveServiceRejectionIsUnsolved(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":0,"request":"ERROR_WRONG_USER_KEY"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := newFakePage()
	page.evalResults["data-sitekey"] = "site-key-abc"

	s := NewSolver(solverConfig(srv.URL), zap.NewNop())
	res := s.Solve(context.Background(), page, TypeRecaptcha, "https://example.org", "")

	assert.True(t, res.Encountered)
	assert.False(t, res.Solved)
	assert.Contains(t, res.Detail, "ERROR_WRONG_USER_KEY")
}

func TestSolveWithoutCredentials(t *testing.T) {
	cfg := solverConfig("http://unused")
	cfg.APIKey = ""

	s := NewSolver(cfg, zap.NewNop())
	res := s.Solve(context.Background(), newFakePage(), TypeRecaptcha, "https://example.org", "")

	assert.True(t, res.Encountered)
	assert.False(t, res.Solved)
	assert.Contains(t, res.Detail, "credentials")
}

func TestSolveProfileKeyOverridesServiceKey(t *testing.T) {
	var seenKey atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		seenKey.Store(r.Form.Get("key"))
		fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":1,"request":"tok"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := newFakePage()
	page.evalResults["data-sitekey"] = "site-key-abc"

	s := NewSolver(solverConfig(srv.URL), zap.NewNop())
	res := s.Solve(context.Background(), page, TypeRecaptcha, "https://example.org", "owner-key")

	assert.True(t, res.Solved)
	assert.Equal(t, "owner-key", seenKey.Load())
}
