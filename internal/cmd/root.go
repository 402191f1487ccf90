// Package cmd implements the reflectmap command line: building descriptor
// maps, serving them over gRPC reflection, and querying reflection servers.
package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

type rootCommand struct {
	gs   *GlobalState
	conf Config
	cmd  *cobra.Command
}

// Execute runs the command named by gs.CmdArgs and exits the process through
// gs.OSExit with a non-zero code if it fails.
func Execute(gs *GlobalState) {
	newRootCommand(gs).execute()
}

func newRootCommand(gs *GlobalState) *rootCommand {
	c := &rootCommand{gs: gs}
	rootCmd := &cobra.Command{
		Use:               "reflectmap",
		Short:             "Build and serve gRPC reflection data from precompiled descriptor maps",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}

	conf := defaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", conf.LogLevel, "log level (trace, debug, info, warning, error); env REFLECTMAP_LOG_LEVEL")
	flags.String("log-format", conf.LogFormat, "log format (text, json); env REFLECTMAP_LOG_FORMAT")

	rootCmd.SetArgs(gs.CmdArgs[1:])
	rootCmd.SetOut(gs.Stdout)
	rootCmd.SetErr(gs.Stderr)

	subCommands := []func(*rootCommand) *cobra.Command{
		getCmdBuild, getCmdServe, getCmdLs, getCmdType,
	}
	for _, sc := range subCommands {
		rootCmd.AddCommand(sc(c))
	}

	c.cmd = rootCmd
	return c
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig(c.gs)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	applyFlag(flags, "log-level", &conf.LogLevel)
	applyFlag(flags, "log-format", &conf.LogFormat)
	if err := setupLogger(c.gs.Logger, conf); err != nil {
		return err
	}
	c.conf = conf
	return nil
}

func (c *rootCommand) execute() {
	exitCode := 1
	defer func() {
		if r := recover(); r != nil {
			c.gs.Logger.Error(fmt.Errorf("unexpected panic: %s\n%s", r, debug.Stack()))
			exitCode = 2
		}
		if exitCode != 0 {
			c.gs.OSExit(exitCode)
		}
	}()

	if err := c.cmd.Execute(); err != nil {
		c.gs.Logger.Error(err)
		return
	}
	exitCode = 0
}
