package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

// Version information (set via ldflags)
var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	app := &cli.App{
		Name:    "trigger-catalog",
		Usage:   "Download seismic waveforms and catalog STA/LTA triggers",
		Version: fmt.Sprintf("%s (commit: %s)", version, gitSHA),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			statusCommand(),
			reportCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[main] %v", err)
	}
}
