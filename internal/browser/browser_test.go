package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/config"
)

func TestShutdownBeforeLaunchIsSafe(t *testing.T) {
	m := NewManager(config.NewDefaultConfig(), zap.NewNop())
	m.Shutdown()
	m.Shutdown()
}

func TestShutdownRacesCancelPublication(t *testing.T) {
	m := NewManager(config.NewDefaultConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// Publish the cancel func the way a launch in flight does.
		m.mu.Lock()
		m.allocCtx = ctx
		m.allocCancel = cancel
		m.mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		m.Shutdown()
	}()
	wg.Wait()

	m.Shutdown()
}

func TestURLVariants(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   []string
	}{
		{
			name:   "schemeless tries https then http",
			rawURL: "acme-widgets.example.io",
			want:   []string{"https://acme-widgets.example.io", "http://acme-widgets.example.io"},
		},
		{
			name:   "explicit https stays alone",
			rawURL: "https://acme.example.io/contact",
			want:   []string{"https://acme.example.io/contact"},
		},
		{
			name:   "explicit http is respected",
			rawURL: "http://legacy.example.io",
			want:   []string{"http://legacy.example.io"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urlVariants(tt.rawURL))
		})
	}
}

func TestCombineContextCancelsOnSecondary(t *testing.T) {
	secondary, cancelSecondary := context.WithCancel(context.Background())
	combined, cancel := CombineContext(context.Background(), secondary)
	defer cancel()

	assert.NoError(t, combined.Err())
	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with its secondary parent")
	}
}

func TestCombineContextCancelsOnPrimary(t *testing.T) {
	primary, cancelPrimary := context.WithCancel(context.Background())
	combined, cancel := CombineContext(primary, context.Background())
	defer cancel()

	cancelPrimary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with its primary parent")
	}
}
