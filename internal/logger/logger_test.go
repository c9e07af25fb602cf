package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		def = nil
	})
}

func TestParseEnv(t *testing.T) {
	cases := map[string]Env{
		"":           EnvDev,
		"dev":        EnvDev,
		"stage":      EnvStage,
		"preprod":    EnvStage,
		"PRODUCTION": EnvProd,
		" prod ":     EnvProd,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseEnv(in), in)
	}
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	assert.Equal(t, EnvDev, DetectEnv())
	t.Setenv("APP_ENV", "staging")
	assert.Equal(t, EnvStage, DetectEnv())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestInit_DevStdIsText(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	Init(Config{Service: "demo", Env: EnvDev, Backend: BackendStd, Level: slog.LevelDebug, Output: &buf})
	slog.Debug("hello world")

	out := buf.String()
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "service=demo")
	assert.Contains(t, out, "env=dev")
	assert.NotContains(t, out, "{")
}

func TestInit_ProdStdIsJSON(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	Init(Config{Service: "demo", Env: EnvProd, Backend: BackendStd, Output: &buf})
	slog.Info("booted")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "booted", m["msg"])
	assert.Equal(t, "prod", m["env"])
}

func TestInit_ProdZapIsJSON(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	Init(Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              EnvProd,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})
	slog.Info("booted", slog.String("k", "v"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	assert.Equal(t, "booted", m["msg"])
	assert.Equal(t, "demo", m["service"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "v", m["k"])
}

func TestInit_LevelFilters(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	Init(Config{Env: EnvDev, Backend: BackendStd, Level: slog.LevelWarn, Output: &buf})
	slog.Info("quiet")
	slog.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestAttrsFromCtx(t *testing.T) {
	assert.Nil(t, AttrsFromCtx(context.Background()))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04, 0x05},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	attrs := AttrsFromCtx(ctx)
	require.Len(t, attrs, 2)
	assert.Equal(t, "trace_id", attrs[0].Key)
	assert.Equal(t, sc.TraceID().String(), attrs[0].Value.String())
	assert.Equal(t, "span_id", attrs[1].Key)
	assert.Equal(t, sc.SpanID().String(), attrs[1].Value.String())
}
