// Command stepflow is a local toolbox for cron expressions and step files.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "stepflow",
		Usage:                 "Inspect cron expressions and run workflow step files locally",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			cmd.LogLevelFlag(),
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			cronCommand(),
			workflowCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
