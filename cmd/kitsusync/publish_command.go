package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kitsusync/internal/logging"
	"kitsusync/internal/publish"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Push the catalog database and summary to the configured destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			dest, err := newDestination(cfg)
			if err != nil {
				return err
			}
			if dest == nil {
				return errors.New("no publish mode is configured (set publish.mode to \"http\" or \"directory\")")
			}

			publisher := publish.New(dest, logger)
			result, pubErr := publisher.Publish(cmd.Context(), runArtifacts(cfg))
			if pubErr != nil && result == nil {
				return pubErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Published %d artifact(s), %d failed\n", len(result.Published), len(result.Failures))
			if len(result.Failures) > 0 {
				rows := make([][]string, 0, len(result.Failures))
				for _, id := range sortedKeys(result.Failures) {
					rows = append(rows, []string{id, result.Failures[id]})
				}
				fmt.Fprintln(out, renderTable([]string{"ARTIFACT", "ERROR"}, rows, nil))
			}

			if pubErr != nil {
				return pubErr
			}
			if !result.Ok() {
				return fmt.Errorf("publish completed with %d failure(s)", len(result.Failures))
			}
			return nil
		},
	}
}
