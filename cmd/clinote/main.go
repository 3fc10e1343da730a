package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// SIGINT/SIGTERM cancel the context; a sweep stops between batches.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "clinote: interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "clinote: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinote",
		Short:         "Fine-tune and compare pretrained encoders for clinical note specialty classification",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().Bool("log-json", false, "log JSON to stderr")

	root.AddCommand(
		newAnalyzeCmd(),
		newClassifyCmd(),
		newExplainCmd(),
		newComponentsCmd(),
		newPreprocessCmd(),
	)
	return root
}
