// Package inspect holds commands for looking at the stage policy and the archived scenarios.
package inspect

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/logging"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/repositories"
	"github.com/myrjola/directorscut/internal/sqlite"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "inspect",
	Title: "Inspection",
}

func init() {
	Scenarios.Flags().String("db", "./directorscut.sqlite", "SQLite database to read")
	Scenarios.Flags().String("namespace", "cli", "namespace whose scenarios are listed")
}

var NextStage = &cobra.Command{
	Use:     "next-stage <stage> <turns> <text>",
	GroupID: Group.ID,
	Short:   "Print the stage that follows a message",
	Long:    `Applies the stage policy to a message sent in <stage> after <turns> messages and prints the next stage.`,
	Args:    cobra.MinimumNArgs(3), //nolint:mnd // stage, turns and text.
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := models.ParseStage(args[0])
		if err != nil {
			return errors.Wrap(err, "parse stage")
		}
		turns, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Wrap(err, "parse turns", slog.String("turns", args[1]))
		}
		next, err := conversation.NextStage(stage, turns, strings.Join(args[2:], " "))
		if err != nil {
			return errors.Wrap(err, "next stage")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), next)
		return nil
	},
}

var Scenarios = &cobra.Command{
	Use:     "scenarios",
	GroupID: Group.ID,
	Short:   "List archived scenarios",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbURL, _ := cmd.Flags().GetString("db")
		namespace, _ := cmd.Flags().GetString("namespace")
		logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(io.Discard, nil)))

		db, err := sqlite.NewDatabase(cmd.Context(), dbURL, logger)
		if err != nil {
			return errors.Wrap(err, "open database", slog.String("url", dbURL))
		}
		defer func() {
			_ = db.Close()
		}()
		scenarios, err := repositories.NewScenarioRepository(db, logger).List(cmd.Context(), namespace)
		if err != nil {
			return errors.Wrap(err, "list scenarios")
		}
		out := cmd.OutOrStdout()
		if len(scenarios) == 0 {
			_, _ = fmt.Fprintln(out, "no scenarios")
			return nil
		}
		for _, s := range scenarios {
			_, _ = fmt.Fprintf(out, "# %s %s (%s, %s)\n%s\n\n%s\n\n",
				s.Created.Format("2006-01-02 15:04"), s.ID, s.Director, s.Emotion, s.Vignette, s.Scenario)
		}
		return nil
	},
}
