package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// syncWriter serialises writes from the alert goroutine and the command goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// lineAlerter prints each value on its own line. It never blocks, so the
// notification surface shows values as fast as they arrive.
type lineAlerter struct {
	out   io.Writer
	label *color.Color
	value *color.Color
	now   func() time.Time
}

func newLineAlerter(out io.Writer) *lineAlerter {
	label := color.New(color.FgCyan)
	value := color.New(color.FgWhite, color.Bold)
	if !isTerminal(out) {
		label.DisableColor()
		value.DisableColor()
	}
	return &lineAlerter{out: out, label: label, value: value, now: time.Now}
}

func (a *lineAlerter) Alert(_ context.Context, value string) error {
	_, err := fmt.Fprintf(a.out, "%s %s\n",
		a.label.Sprintf("[%s] Value received:", a.now().Format("15:04:05")),
		a.value.Sprint(value))
	return err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	switch v := w.(type) {
	case *syncWriter:
		return isTerminal(v.w)
	case *os.File:
		return term.IsTerminal(int(v.Fd()))
	}
	return false
}
