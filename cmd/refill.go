package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/refill"
)

var refillCmd = &cobra.Command{
	Use:   "refill",
	Short: "Generate questions for the least represented chapters",
	Long: "refill spends spare quota on new bank questions. Run it from a scheduler.\n" +
		"With --import, candidates are read as JSON lines from a file (- for stdin)\n" +
		"instead of being generated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")
		importPath, _ := cmd.Flags().GetString("import")

		d, err := openDeps(cmd, importPath == "")
		if err != nil {
			return err
		}
		defer d.Close()

		if !cmd.Flags().Changed("count") {
			count = d.cfg.Refill.Count
		}

		guard := refill.NewGuard(d.bank, d.cfg.Refill.MaxShare)
		runner := refill.NewRunner(guard, d.gen, d.quota, refill.RunnerOptions{
			Syllabus:        d.cfg.Chapters,
			GenerateTimeout: d.cfg.GenerateTimeout,
			Metrics:         d.metrics,
			Logger:          &d.logger,
		})

		// Dry-run candidates go to stdout; the report follows on stderr.
		var reportOut io.Writer = os.Stdout
		if dryRun {
			reportOut = os.Stderr
		}
		opts := refill.RunOptions{Count: count, DryRun: dryRun, Force: force, Out: os.Stdout}

		var rep refill.Report
		if importPath != "" {
			src, closeSrc, err := openInput(importPath)
			if err != nil {
				return err
			}
			defer closeSrc()
			rep, err = runner.Import(cmd.Context(), src, opts)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
		} else {
			if d.gen == nil {
				return errors.New("refill needs an LLM provider; set GEMINI_API_KEY or use --import")
			}
			rep, err = runner.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("refill: %w", err)
			}
		}

		enc := json.NewEncoder(reportOut)
		return enc.Encode(rep)
	},
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open import file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func init() {
	refillCmd.Flags().IntP("count", "n", 5, "Number of generation attempts (overrides GQUIZ_REFILL_COUNT)")
	refillCmd.Flags().Bool("dry-run", false, "Print candidates as JSON lines instead of appending")
	refillCmd.Flags().Bool("force", false, "Append candidates for saturated chapters")
	refillCmd.Flags().String("import", "", "Read candidates from a JSON lines file instead of generating")
}
