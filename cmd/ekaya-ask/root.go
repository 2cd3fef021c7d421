package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-analyst/pkg/client"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// Version is set at build time via ldflags
var Version = "dev"

const defaultServer = "http://localhost:3443"

type rootOptions struct {
	server   string
	output   string
	dataFile string
	maxRows  int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ekaya-ask [question]",
		Short: "Ask a question about the loaded datasets",
		Long:  `ekaya-ask sends a natural-language question to an ekaya-analyst server and prints the answer, the SQL that ran, the result rows and the suggested charts.`,
		Example: `  # Ask a question
  ekaya-ask "top 3 customers by revenue"

  # Scope the question to one table
  ekaya-ask --data-file orders "monthly order totals"

  # Print the full result as YAML
  ekaya-ask -o yaml "revenue by city"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, opts, strings.Join(args, " "))
		},
	}

	server := os.Getenv("EKAYA_ANALYST_URL")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "Server base URL (env EKAYA_ANALYST_URL)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().StringVar(&opts.dataFile, "data-file", "", "Table to scope the question to")
	cmd.Flags().IntVar(&opts.maxRows, "max-rows", 20, "Rows to print in table output (0 prints all)")

	cmd.AddCommand(newDatasetsCmd(opts), newVersionCmd())
	return cmd
}

func validateOutput(output string) error {
	switch output {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", output)
	}
}

func runAsk(ctx context.Context, opts *rootOptions, question string) error {
	c := client.New(opts.server, nil)
	q := models.Question{Text: question, DataFile: opts.dataFile}

	var progress *progressPrinter
	if opts.output == "table" {
		progress = startProgress()
		defer progress.stop()
	}

	terminal, err := c.Analyze(ctx, q, func(ev models.StreamEvent) {
		if status, ok := ev.(models.StatusEvent); ok && progress != nil {
			progress.update(status)
		}
	})
	if err != nil {
		if progress != nil {
			progress.fail("Request failed")
		}
		return err
	}

	switch ev := terminal.(type) {
	case models.CompleteEvent:
		if progress != nil {
			progress.succeed(ev.Payload)
		}
		return printPayload(os.Stdout, opts.output, ev.Payload, opts.maxRows)
	case models.FailedEvent:
		if progress != nil {
			progress.fail("Analysis failed")
		}
		if opts.output != "table" {
			if err := encode(os.Stdout, opts.output, ev); err != nil {
				return err
			}
		}
		return fmt.Errorf("%s: %s", ev.Code, ev.Message)
	default:
		return fmt.Errorf("unexpected terminal event %T", terminal)
	}
}

func newDatasetsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the tables the server has loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(root.output); err != nil {
				return err
			}
			info, err := client.New(root.server, nil).Datasets(cmd.Context())
			if err != nil {
				return err
			}
			if root.output != "table" {
				return encode(os.Stdout, root.output, info)
			}
			return printDatasets(info)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ekaya-ask %s\n", Version)
		},
	}
}
