package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pacelab/internal/bootstrap"
	"pacelab/internal/domain/model"
	"pacelab/internal/services/modelops"
	"pacelab/pkg/errors"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				if err := c.Migrate(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgGreen).Sprint("✓"), "schema up to date")
				return nil
			})
		},
	}
}

func newTrainCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on the full activity history",
		Long: `Fit a new k-means model on every valid activity record and register it.

Without --force nothing happens while an active model exists. With
MODEL_AUTO_ACTIVATE the new model replaces the active one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				outcome, err := c.Services.ModelOps.Train(ctx, force)
				if outcome != nil {
					if outputFormat == formatJSON {
						if jErr := writeJSON(cmd.OutOrStdout(), outcome); jErr != nil {
							return jErr
						}
					} else {
						renderOutcome(cmd.OutOrStdout(), outcome)
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Retrain even when an active model exists")
	return cmd
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <model-id>",
		Short: "Make a registered model the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseModelID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				m, err := c.Services.ModelOps.Activate(ctx, id)
				if err != nil {
					return err
				}
				if outputFormat == formatJSON {
					return writeJSON(cmd.OutOrStdout(), m)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s model %s (v%d) is active\n",
					color.New(color.FgGreen).Sprint("✓"), m.ID, m.Version)
				return nil
			})
		},
	}
}

func newDeprecateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deprecate <model-id>",
		Short: "Retire a model so it can never be activated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseModelID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				if err := c.Services.ModelOps.Deprecate(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "model %s deprecated\n", id)
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active model and check it against its artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				status, err := c.Services.ModelOps.Status(ctx)
				if err != nil {
					return err
				}
				if outputFormat == formatJSON {
					if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
						return err
					}
				} else {
					renderStatus(cmd.OutOrStdout(), status)
				}
				if status.Integrity != nil && !status.Integrity.OK() {
					return errors.Wrap(errors.ErrIntegrity, status.Integrity.Detail)
				}
				return nil
			})
		},
	}
}

func newModelsCmd() *cobra.Command {
	var lineage string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the active and archived models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				var (
					models []*model.TrainedModel
					err    error
				)
				if lineage != "" {
					id, pErr := parseModelID(lineage)
					if pErr != nil {
						return pErr
					}
					models, err = c.Services.ModelOps.Lineage(ctx, id)
				} else {
					models, err = c.Services.ModelOps.Models(ctx)
				}
				if err != nil {
					return err
				}

				if outputFormat == formatJSON {
					summaries := make([]*modelops.ModelSummary, 0, len(models))
					for _, m := range models {
						summaries = append(summaries, modelops.Summarize(m))
					}
					return writeJSON(cmd.OutOrStdout(), summaries)
				}
				renderModels(cmd.OutOrStdout(), models)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lineage, "lineage", "", "Show a model and its ancestors instead")
	return cmd
}

func parseModelID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.NewValidationError("model_id", "must be a UUID", s)
	}
	return id, nil
}
