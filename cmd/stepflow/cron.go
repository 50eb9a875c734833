package main

import (
	"context"
	"fmt"
	"io"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cron"
)

func cronCommand() *cli.Command {
	return &cli.Command{
		Name:  "cron",
		Usage: "Work with five-field cron expressions",
		Commands: []*cli.Command{
			{
				Name:      "next",
				Usage:     "Print the next run instants of an expression",
				ArgsUsage: "<expression>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tz",
						Usage: "IANA timezone the expression is evaluated in",
						Value: "UTC",
					},
					&cli.StringFlag{
						Name:  "from",
						Usage: "RFC 3339 instant to start from (defaults to now)",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of instants to print",
						Value: 5,
					},
				},
				Action: func(_ context.Context, command *cli.Command) error {
					from := time.Now()

					if raw := command.String("from"); raw != "" {
						parsed, err := time.Parse(time.RFC3339, raw)
						if err != nil {
							return fmt.Errorf("invalid --from: %w", err)
						}

						from = parsed
					}

					return printNextRuns(
						command.Root().Writer,
						command.Args().First(),
						command.String("tz"),
						from,
						command.Int("count"),
					)
				},
			},
		},
	}
}

func printNextRuns(w io.Writer, expression, timezone string, from time.Time, count int) error {
	expr, err := cron.Parse(expression)
	if err != nil {
		return err
	}

	loc, err := cron.LoadLocation(timezone)
	if err != nil {
		return err
	}

	after := from

	for range count {
		next, err := expr.Next(after, loc)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, "%s  (%s)\n", next.In(loc).Format(time.RFC3339), next.UTC().Format(time.RFC3339)); err != nil {
			return err
		}

		after = next
	}

	return nil
}
