package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-momentum-bot/internal/trace"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, InitWithConfig(LogConfig{Level: "DEBUG", Format: "json", DetailedLogging: true, Mode: "paper", Output: &buf}))
	return &buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestOperationEndWithErrorLogsOperation(t *testing.T) {
	buf := capture(t)

	op := StartOperation(context.Background(), "runner.squareOff", "leg", "CE")
	op.EndWithError(errors.New("rejected"), "price", 151.0)

	recs := records(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "Operation started", recs[0]["msg"])

	failed := recs[1]
	assert.Equal(t, "Operation failed", failed["msg"])
	assert.Equal(t, "ERROR", failed["level"])
	assert.Equal(t, "runner.squareOff", failed["operation"])
	assert.Equal(t, "CE", failed["leg"])
	assert.Equal(t, "rejected", failed["error"])
	assert.Equal(t, 151.0, failed["price"])
	assert.Equal(t, "PAPER", failed["mode"])
	assert.Contains(t, failed, "duration_ms")
}

func TestOperationEndExportsSpan(t *testing.T) {
	capture(t)
	var spans bytes.Buffer
	require.NoError(t, trace.InitWithConfig(trace.Config{Enabled: true, Output: &spans}))

	op := StartOperation(context.Background(), "runner.ensureInstrument", "leg", "PE")
	_, _, ok := trace.GetTraceFields(op.GetContext())
	assert.True(t, ok)
	op.End("attempts", 2)

	require.NoError(t, trace.Shutdown(context.Background()))
	assert.Contains(t, spans.String(), "runner.ensureInstrument")
}

func TestOperationWithoutTracingLeavesParentSpanAlone(t *testing.T) {
	buf := capture(t)
	require.NoError(t, trace.InitWithConfig(trace.Config{Enabled: false}))

	op := StartOperation(context.Background(), "runner.ensureInstrument")
	op.End()

	recs := records(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "Operation completed", recs[1]["msg"])
	assert.Equal(t, "runner.ensureInstrument", recs[1]["operation"])
}
