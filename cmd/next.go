package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/orchestrator"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print one question with its answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
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
		served, err := orch.Next(cmd.Context(), sess)
		if err != nil {
			return fmt.Errorf("next question: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(served)
		}

		printQuestion(os.Stdout, 1, served)
		fmt.Printf("\nAnswer: %d. %s\n", served.Record.CorrectIndex+1, served.Record.CorrectChoice())
		if served.Record.Explanation != "" {
			fmt.Println(served.Record.Explanation)
		}
		if served.FallbackReason != "" {
			fmt.Printf("(from the bank: %s)\n", served.FallbackReason)
		}
		return nil
	},
}

func printQuestion(out io.Writer, num int, served orchestrator.Served) {
	rec := served.Record
	source := "online"
	if served.Origin != bank.OriginOnline {
		source = "bank"
	}
	fmt.Fprintf(out, "\nQ%d [%s, %s]\n", num, rec.ChapterTag, source)
	fmt.Fprintln(out, rec.PromptText)
	for i, c := range rec.Choices {
		fmt.Fprintf(out, "  %d. %s\n", i+1, c)
	}
}

func init() {
	nextCmd.Flags().Bool("json", false, "Print the served question as JSON")
	nextCmd.Flags().String("mode", string(orchestrator.ModeAuto), "Question source: auto, online or offline")
}
