package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
)

// testState is a GlobalState wired to in-memory streams and file system.
type testState struct {
	*GlobalState
	stdout   *bytes.Buffer
	logHook  *logtest.Hook
	mu       sync.Mutex
	exitCode int
}

func newTestState(t *testing.T, fs afero.Fs, args ...string) *testState {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	ts := &testState{
		stdout:   new(bytes.Buffer),
		logHook:  hook,
		exitCode: -1,
	}
	ts.GlobalState = &GlobalState{
		Ctx:     context.Background(),
		FS:      fs,
		CmdArgs: append([]string{"reflectmap"}, args...),
		Env:     map[string]string{},
		Stdout:  ts.stdout,
		Stderr:  new(bytes.Buffer),
		Logger:  logger,
		OSExit: func(code int) {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			ts.exitCode = code
		},
	}
	return ts
}

// exited reports the code passed to OSExit, or -1 if it was never called.
func (ts *testState) exited() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.exitCode
}

func (ts *testState) errorMessages() []string {
	var msgs []string
	for _, e := range ts.logHook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
