package cmd

import (
	"errors"
	"fmt"

	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Config is the configuration shared by the commands. Every field can be set
// through the environment; command line flags take precedence.
type Config struct {
	Addr      string `envconfig:"REFLECTMAP_ADDR"`
	Map       string `envconfig:"REFLECTMAP_MAP"`
	LogLevel  string `envconfig:"REFLECTMAP_LOG_LEVEL"`
	LogFormat string `envconfig:"REFLECTMAP_LOG_FORMAT"`
}

func defaultConfig() Config {
	return Config{
		Addr:      "localhost:50051",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// loadConfig returns the defaults overridden by the environment.
func loadConfig(gs *GlobalState) (Config, error) {
	conf := defaultConfig()
	if err := envconfig.Process("", &conf, gs.lookupEnv); err != nil {
		return conf, fmt.Errorf("invalid environment: %w", err)
	}
	return conf, nil
}

// applyFlag overrides *dst with the named flag's value if it was given on the
// command line.
func applyFlag(flags *pflag.FlagSet, name string, dst *string) {
	if !flags.Changed(name) {
		return
	}
	if v, err := flags.GetString(name); err == nil {
		*dst = v
	}
}

func setupLogger(logger *logrus.Logger, conf Config) error {
	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	switch conf.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q", conf.LogFormat)
	}
	logger.Debugf("Logger format: %s", conf.LogFormat)
	return nil
}

var errMissingMap = errors.New("no descriptor map given: use --map or REFLECTMAP_MAP")
