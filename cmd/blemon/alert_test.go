package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineAlerterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	a := newLineAlerter(&syncWriter{w: &buf})
	a.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC) }

	require.NoError(t, a.Alert(context.Background(), "Hello"))
	assert.Equal(t, "[15:04:05] Value received: Hello\n", buf.String(), "non-terminal output MUST NOT carry colour codes")
}

func TestProgressPrinterStopClearsLine(t *testing.T) {
	var buf syncWriter
	var out bytes.Buffer
	buf.w = &out

	p := NewProgressPrinter(&buf, "Waiting for X1", "Scanning", "Done")
	p.Start()
	p.Callback()("Done")
	p.Stop()

	assert.Contains(t, out.String(), "Waiting for X1 (Scanning...)")
	assert.True(t, bytes.HasSuffix(out.Bytes(), []byte(clearLineSequence)))
}
