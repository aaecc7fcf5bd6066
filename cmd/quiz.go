package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/orchestrator"
	"github.com/abhisek/gquiz/internal/ui"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Answer questions interactively (default command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		return runQuiz(cmd, count)
	},
}

func runQuiz(cmd *cobra.Command, count int) error {
	mode, err := sessionMode(cmd)
	if err != nil {
		return err
	}

	d, err := openDeps(cmd, true)
	if err != nil {
		return err
	}
	defer d.Close()

	orch := d.orchestrator()
	sess, err := orch.NewSession(nil, mode)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	score, err := ui.Run(cmd.Context(), orch, sess, count)
	fmt.Fprintf(cmd.OutOrStdout(), "Score: %d/%d\n", score.Correct, score.Answered)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sessionMode reads --mode where the command defines it.
func sessionMode(cmd *cobra.Command) (orchestrator.Mode, error) {
	if cmd.Flags().Lookup("mode") == nil {
		return orchestrator.ModeAuto, nil
	}
	raw, _ := cmd.Flags().GetString("mode")
	return orchestrator.ParseMode(raw)
}

func init() {
	quizCmd.Flags().IntP("count", "n", 0, "Stop after this many questions (0 = until you quit)")
	quizCmd.Flags().String("mode", string(orchestrator.ModeAuto), "Question source: auto, online or offline")
}
