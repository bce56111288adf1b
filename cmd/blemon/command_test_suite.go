//go:build test

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/permission"
	"github.com/srg/blemon/internal/testutils"
)

// lockedBuffer is a bytes.Buffer the test can read while a command writes to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs blemon commands against an in-memory BLE stack.
// All cmd/blemon test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Provider *testutils.FakeProvider

	prevProvider func(*config.Config, *logrus.Logger) device.Provider
	prevPrompter func() permission.Prompter
}

func (s *CommandTestSuite) SetupTest() {
	s.Provider = testutils.NewFakeProvider()

	s.prevProvider = newProvider
	s.prevPrompter = newPrompter
	newProvider = func(*config.Config, *logrus.Logger) device.Provider { return s.Provider }
	newPrompter = func() permission.Prompter { return nil }
}

func (s *CommandTestSuite) TearDownTest() {
	newProvider = s.prevProvider
	newPrompter = s.prevPrompter
}

// args appends the flags every test run needs: an empty config file location and
// granted permissions.
func (s *CommandTestSuite) args(args []string) []string {
	return append(args,
		"--config", filepath.Join(s.T().TempDir(), "config.yaml"),
		"--permission", "granted",
	)
}

// ExecuteCommand runs blemon with args and returns combined output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out, done := s.StartCommand(context.Background(), args...)
	err := <-done
	return out.String(), err
}

// StartCommand runs blemon in the background. The command stops when ctx is
// cancelled; its error is delivered on the returned channel.
func (s *CommandTestSuite) StartCommand(ctx context.Context, args ...string) (*lockedBuffer, <-chan error) {
	root := newRootCmd()
	out := &lockedBuffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(s.args(args))

	done := make(chan error, 1)
	go func() {
		done <- root.ExecuteContext(ctx)
	}()
	return out, done
}
