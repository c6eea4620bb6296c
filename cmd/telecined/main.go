// Command telecined runs the telecine daemon in the foreground. It is the
// same runtime the CLI launches detached via "telecine start".
package main

import (
	"context"
	"flag"
	"log"

	"telecine/internal/config"
	"telecine/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	socketPath := flag.String("socket", "", "path to IPC socket")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	level := *logLevel
	if level == "" {
		level = cfg.Logging.Level
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		SocketPath: *socketPath,
		LogLevel:   level,
	}); err != nil {
		log.Fatalf("telecined: %v", err)
	}
}
