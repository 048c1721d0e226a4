package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesHandler_AttachesCycle(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, false, slog.LevelInfo))

	ctx := ContextWithCycle(context.Background(), "01J0CYCLE")
	SetPhase(ctx, "dispatching")
	logger.InfoContext(ctx, "cycle done", "created", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "cycle done", rec["msg"])
	assert.Equal(t, "01J0CYCLE", rec[CycleAttributeKey])
	assert.Equal(t, "dispatching", rec[PhaseAttributeKey])
	assert.EqualValues(t, 2, rec["created"])
}

func TestAttributesHandler_NoBag(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, false, slog.LevelInfo))
	logger.InfoContext(context.Background(), "idle")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, CycleAttributeKey)
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(NewTextHandler(&buf, WithColor(false), WithLevel(slog.LevelInfo))))

	ctx := ContextWithCycle(context.Background(), "c-1")
	AddError(ctx, errors.New("notion unavailable"))
	logger.DebugContext(ctx, "hidden")
	logger.WarnContext(ctx, "cycle failed", "listed", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN c-1 \"cycle failed\" \"notion unavailable\"\n")
	assert.Contains(t, out, "    listed=3\n")
}

func TestContextAttributes(t *testing.T) {
	ctx := ContextWithSlog(context.Background())
	AddAttributes(ctx, map[string]any{"req": map[string]any{"method": "GET"}})
	AddAttributes(ctx, map[string]any{"req": map[string]any{"status": 200}})

	req := GetAttribute[map[string]any](ctx, "req")
	assert.Equal(t, map[string]any{"method": "GET", "status": 200}, req)
	assert.Empty(t, GetAttribute[string](context.Background(), "req"))
	assert.Empty(t, GetAttribute[string](ctx, "req"), "wrong type yields zero value")
}

func TestOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmirror.log")
	var console bytes.Buffer
	w, closer := Output(&console, FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})

	_, err := w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
	assert.Equal(t, "line\n", console.String())
}

func TestOutput_NoFile(t *testing.T) {
	var console bytes.Buffer
	w, closer := Output(&console, FileConfig{})
	assert.Same(t, &console, w)
	assert.NoError(t, closer.Close())
}
