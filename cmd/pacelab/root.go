package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pacelab/internal/bootstrap"
	"pacelab/pkg/errors"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var outputFormat string

// NewRootCmd builds the pacelab command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "pacelab",
		Short:   "Activity classification model lifecycle",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Long: `pacelab trains k-means models over recorded activities, keeps a
versioned registry with exactly one active model, classifies activities
with a rule-based fallback, and records every decision in an audit trail.

Configuration is read from the environment (and .env when present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat {
			case formatText, formatJSON:
				return nil
			}
			return errors.NewValidationError("format", "must be text or json", outputFormat)
		},
	}

	root.PersistentFlags().StringVar(&outputFormat, "format", formatText, "Output format (text|json)")

	root.AddCommand(
		newMigrateCmd(),
		newTrainCmd(),
		newActivateCmd(),
		newDeprecateCmd(),
		newClassifyCmd(),
		newStatusCmd(),
		newModelsCmd(),
		newHistoryCmd(),
		newStatsCmd(),
		newFeedbackCmd(),
		newServeCmd(),
	)

	return root
}

// withContainer builds the application, runs fn and shuts everything down
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *bootstrap.Container) error) error {
	c := bootstrap.NewContainer(version)
	defer c.Shutdown()

	if err := c.Init(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = c.Context
	}
	return fn(ctx, c)
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling JSON")
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// exitCode maps error kinds onto process exit codes so scripts can branch
func exitCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrInsufficientData):
		return 3
	case errors.Is(err, errors.ErrTrainingTimeout):
		return 4
	case errors.Is(err, errors.ErrActivationConflict):
		return 5
	case errors.Is(err, errors.ErrIntegrity):
		return 6
	case errors.Is(err, errors.ErrNotFound):
		return 7
	case errors.Is(err, errors.ErrInvalidInput):
		return 2
	}
	return 1
}
