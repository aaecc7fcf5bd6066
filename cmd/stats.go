package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show served question and answer statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		counts, err := s.EventRepo().ServedByOrigin(ctx)
		if err != nil {
			return fmt.Errorf("query served counts: %w", err)
		}
		if len(counts) == 0 {
			fmt.Println("No questions served yet.")
			return nil
		}

		fmt.Println("Served by Origin")
		fmt.Println(strings.Repeat("─", 30))
		var total int
		for _, c := range counts {
			fmt.Printf("%-20s  %8d\n", c.Origin, c.Count)
			total += c.Count
		}
		fmt.Println(strings.Repeat("─", 30))
		fmt.Printf("%-20s  %8d\n", "TOTAL", total)

		recent, err := s.EventRepo().QueryServed(ctx, store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query served events: %w", err)
		}

		fmt.Println()
		fmt.Printf("%-19s  %-8s  %-24s  %-12s  %s\n", "Timestamp", "Session", "Chapter", "Origin", "Fallback")
		fmt.Println(strings.Repeat("─", 90))
		for _, e := range recent {
			fmt.Printf("%-19s  %-8s  %-24s  %-12s  %s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				truncate(e.SessionID, 8),
				truncate(e.Chapter, 24),
				e.Origin,
				e.FallbackReason,
			)
		}

		answers, err := s.EventRepo().AnswersByChapter(ctx)
		if err != nil {
			return fmt.Errorf("query answer stats: %w", err)
		}
		if len(answers) == 0 {
			return nil
		}

		fmt.Println()
		fmt.Printf("%-24s  %8s  %8s  %8s\n", "Chapter", "Answered", "Correct", "Accuracy")
		fmt.Println(strings.Repeat("─", 56))
		for _, a := range answers {
			fmt.Printf("%-24s  %8d  %8d  %7.0f%%\n",
				truncate(a.Chapter, 24), a.Answered, a.Correct, a.Accuracy()*100)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntP("limit", "n", 10, "Number of recent questions to show")
}
