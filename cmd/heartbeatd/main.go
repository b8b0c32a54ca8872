// Command heartbeatd periodically samples host CPU and memory usage into a
// rotating JSONL file. It manages its own lifecycle: the same binary
// installs itself as a service, starts, stops and reports on it.
package main

import (
	"fmt"
	"os"
	"strings"

	"svckit"
	"svckit/cli"
	"svckit/internal/logger"
)

const defaultConfigPath = "conf/heartbeatd.json"

var version = "dev"

func main() {
	configPath := configPathFromArgs(os.Args[1:])

	cfg, err := LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	var args []string
	if configPath != defaultConfigPath {
		args = []string{"--config", configPath}
	}

	ctl, err := svckit.New(svckit.Descriptor{
		Name:        "heartbeatd",
		Description: "Host heartbeat sampler",
		AutoStart:   cfg.Service.AutoStart,
		Callback: func(h *svckit.Handle) error {
			return serve(h, cfg, configPath)
		},
	}, &svckit.Config{Args: args})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	root := cli.New(ctl)
	root.Version = version
	root.PersistentFlags().String("config", defaultConfigPath, "path to the configuration file")
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPathFromArgs extracts --config before any command processing, so the
// configuration is available while the command tree is still being built.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return defaultConfigPath
}

// serve is the service body: sample until a stop is requested, reloading the
// sampling interval and log level when the configuration file changes.
func serve(h *svckit.Handle, cfg *Config, configPath string) error {
	log := logger.WithComponent("main")
	log.Info().Str("version", version).Str("config", configPath).Msg("starting heartbeatd")

	sampler, err := NewSampler(cfg.Sample)
	if err != nil {
		return err
	}
	defer func() {
		if err := sampler.Close(); err != nil {
			log.Error().Err(err).Msg("error closing sampler")
		}
	}()

	watcher, err := newConfigWatcher(configPath, func(newCfg *Config) {
		if err := logger.SetLevel(newCfg.Logging.Level); err != nil {
			log.Error().Err(err).Msg("failed to update log level")
		}
		sampler.SetInterval(newCfg.Sample.Interval)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to create config watcher, hot reload disabled")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to start config watcher, hot reload disabled")
		watcher.Close()
	} else {
		defer watcher.Close()
	}

	return sampler.Run(h)
}
