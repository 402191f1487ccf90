package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// GlobalState holds everything the commands take from the process they run
// in: arguments, environment, standard streams, file system and logger.
// Tests build their own instance so commands can run in-process.
type GlobalState struct {
	Ctx context.Context

	FS      afero.Fs
	CmdArgs []string
	Env     map[string]string

	Stdout, Stderr io.Writer
	Logger         *logrus.Logger

	OSExit func(int)
}

// NewGlobalState returns a GlobalState backed by the real operating system.
func NewGlobalState(ctx context.Context) *GlobalState {
	logger := &logrus.Logger{
		Out:       os.Stderr,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}
	return &GlobalState{
		Ctx:     ctx,
		FS:      afero.NewOsFs(),
		CmdArgs: os.Args,
		Env:     buildEnvMap(os.Environ()),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  logger,
		OSExit:  os.Exit,
	}
}

func buildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}

// lookupEnv matches the signature envconfig expects for its lookup function.
func (gs *GlobalState) lookupEnv(key string) (string, bool) {
	v, ok := gs.Env[key]
	return v, ok
}
