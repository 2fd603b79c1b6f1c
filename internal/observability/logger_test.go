package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/outreachlabs/formpilot/internal/config"
)

// memSink captures console output for assertions.
type memSink struct {
	strings.Builder
}

func (*memSink) Sync() error { return nil }

var _ zapcore.WriteSyncer = (*memSink)(nil)

func TestInitializeWritesNamedJSONEntries(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "formpilot-test",
	}, sink)

	GetLogger().Named("pipeline").Info("attempt classified")

	out := sink.String()
	assert.Contains(t, out, `"attempt classified"`)
	assert.Contains(t, out, "formpilot-test.pipeline")
}

func TestInitializeRespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "warn",
		Format:      "json",
		ServiceName: "formpilot-test",
	}, sink)

	logger := GetLogger()
	logger.Info("below threshold")
	logger.Warn("at threshold")

	out := sink.String()
	assert.NotContains(t, out, "below threshold")
	assert.Contains(t, out, "at threshold")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memSink{}
	second := &memSink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "b"}, second)

	GetLogger().Info("routed to the first sink")

	assert.Contains(t, first.String(), "routed to the first sink")
	assert.Empty(t, second.String())
}

func TestGetLoggerFallsBackBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// Must not panic even though Initialize never ran.
	logger.Debug("fallback logger is usable")
}
