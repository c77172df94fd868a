// Package main provides the planion binary: an event-sourced task
// orchestration service with an HTTP API and a one-shot command mode.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "planion",
		Usage:                 "Plan-driven task orchestration",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewExecCommand(),
			NewStatusCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
