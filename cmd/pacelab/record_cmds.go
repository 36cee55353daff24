package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pacelab/internal/bootstrap"
	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file.json|->",
		Short: "Classify activity records read from a JSON array",
		Long: `Classify every record in a JSON array of activities. Use - to read stdin.

Each record gets a label and a confidence. The confidence is a distance
heuristic in [0,1], not a calibrated probability. Records the model cannot
handle are labelled by the era rule instead.

Example input:
  [{"id": 1, "timestamp": "2024-06-01T07:00:00Z", "pace": 8.1, "distance": 5, "duration_seconds": 2430}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				batch, err := c.Services.ModelOps.Classify(ctx, records)
				if err != nil {
					return err
				}
				if outputFormat == formatJSON {
					return writeJSON(cmd.OutOrStdout(), batch)
				}
				renderBatch(cmd.OutOrStdout(), batch)
				return nil
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <record-id>",
		Short: "Show every label decision for a record, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.NewValidationError("record_id", "must be an integer", args[0])
			}
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				entries, err := c.Services.ModelOps.GetHistory(ctx, recordID)
				if err != nil {
					return err
				}
				if outputFormat == formatJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				renderHistory(cmd.OutOrStdout(), recordID, entries)
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	var since, until string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count decisions and average confidence per source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := statsFilter(since, until)
			if err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				stats, err := c.Services.ModelOps.GetStats(ctx, filter)
				if err != nil {
					return err
				}
				if outputFormat == formatJSON {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				renderStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only decisions at or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "Only decisions at or before this date (YYYY-MM-DD)")
	return cmd
}

// statsFilter parses the day bounds; until covers its whole day
func statsFilter(since, until string) (audit.StatsFilter, error) {
	var filter audit.StatsFilter
	for _, b := range []struct {
		name  string
		value string
		dst   **time.Time
		shift time.Duration
	}{
		{"since", since, &filter.Since, 0},
		{"until", until, &filter.Until, 24*time.Hour - time.Microsecond},
	} {
		if b.value == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", b.value)
		if err != nil {
			return filter, errors.NewValidationError(b.name, "must be YYYY-MM-DD", b.value)
		}
		t = t.Add(b.shift)
		*b.dst = &t
	}
	return filter, nil
}

type feedbackFlags struct {
	recordID     int64
	aiLabel      string
	aiConfidence float64
	feedbackType string
	userLabel    string
	certainty    int
}

// toFeedback converts flags into a feedback row. Zero certainty means unset.
func (f feedbackFlags) toFeedback() *audit.Feedback {
	fb := &audit.Feedback{
		RecordID:     f.recordID,
		AILabel:      classification.Label(f.aiLabel),
		AIConfidence: f.aiConfidence,
		Type:         audit.FeedbackType(f.feedbackType),
	}
	if f.userLabel != "" {
		label := classification.Label(f.userLabel)
		fb.UserLabel = &label
	}
	if f.certainty != 0 {
		certainty := f.certainty
		fb.Certainty = &certainty
	}
	return fb
}

func newFeedbackCmd() *cobra.Command {
	var flags feedbackFlags

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record a user's reaction to a label",
		Long: `Record feedback on a classification. A correct or reject with --user-label
replaces the record's current label and is written to the audit trail as
a manual decision. Feedback also feeds the retraining worker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fb := flags.toFeedback()
			if err := fb.Validate(); err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				if err := c.Services.ModelOps.SubmitFeedback(ctx, fb); err != nil {
					return err
				}
				if outputFormat == formatJSON {
					return writeJSON(cmd.OutOrStdout(), fb)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s feedback %s recorded for record %d\n",
					color.New(color.FgGreen).Sprint("✓"), fb.ID, fb.RecordID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&flags.recordID, "record", 0, "Record ID")
	cmd.Flags().StringVar(&flags.aiLabel, "ai-label", "", "Label the system assigned")
	cmd.Flags().Float64Var(&flags.aiConfidence, "ai-confidence", 0, "Confidence the system reported")
	cmd.Flags().StringVar(&flags.feedbackType, "type", "", "accept|reject|correct|uncertain")
	cmd.Flags().StringVar(&flags.userLabel, "user-label", "", "Label the user says is right")
	cmd.Flags().IntVar(&flags.certainty, "certainty", 0, "User certainty 1-5")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("ai-label")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run background workers and serve /metrics",
		Long: `Run the integrity checker and the feedback retrainer on their intervals
and expose Prometheus metrics on METRICS_ADDR until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				if err := c.Start(); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					c.Log.Info("Shutdown signal received")
				case <-c.Context.Done():
					c.Log.Warn("Application context cancelled")
				}
				return nil
			})
		},
	}
}

// readRecords decodes a JSON array of records from path, or stdin for "-"
func readRecords(stdin io.Reader, path string) ([]activity.Record, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		r = f
	}

	var records []activity.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, errors.WithKind(errors.ErrInvalidInput, err, "decode activity records")
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no records to classify")
	}
	return records, nil
}
