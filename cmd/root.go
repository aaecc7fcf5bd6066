package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gquiz",
	Short: "Practice quiz for the JDLA G-test",
	Long: "gquiz serves multiple-choice practice questions, generated online while the\n" +
		"free-tier quota allows and drawn from a local question bank otherwise.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuiz(cmd, 0)
	},
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the question bank, quota state and audit log (overrides GQUIZ_DATA_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides GQUIZ_LOG_LEVEL)")

	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refillCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(bankCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
