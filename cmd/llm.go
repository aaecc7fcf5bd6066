package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/llm"
	"github.com/abhisek/gquiz/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the LLM audit log and available models",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM calls, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		asJSON, _ := cmd.Flags().GetBool("json")

		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().QueryLLMEvents(cmd.Context(), store.QueryOpts{Limit: limit, Purpose: purpose})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			for _, e := range events {
				e.RequestBody, e.ResponseBody = "", ""
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}
		printLLMEvents(out, events)
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the prompt and reply of one LLM call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q", args[0])
		}

		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.EventRepo().GetLLMEvent(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("event %d not found", id)
		}
		printLLMEvent(cmd.OutOrStdout(), e)
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize token usage by purpose and estimated cost by model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		repo := s.EventRepo()
		byPurpose, err := repo.LLMUsageByPurpose(cmd.Context())
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}
		byModel, err := repo.LLMUsageByModel(cmd.Context())
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		printLLMUsage(cmd.OutOrStdout(), byPurpose, byModel)
		return nil
	},
}

var llmModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List Gemini models available to the configured API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.LLM.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is not set")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLM.Timeout)
		defer cancel()
		names, err := llm.ListGeminiModels(ctx, cfg.LLM.Gemini.APIKey)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}

		configured := make([]string, len(cfg.LLM.Gemini.Models))
		for i, m := range cfg.LLM.Gemini.Models {
			configured[i] = llm.GeminiModelID(m)
		}
		printGeminiModels(cmd.OutOrStdout(), names, configured)
		return nil
	},
}

func printLLMEvents(w io.Writer, events []store.LLMEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No LLM calls recorded.")
		return
	}
	fmt.Fprintf(w, "%-5s  %-19s  %-12s  %-28s  %6s  %6s  %6s  %s\n",
		"ID", "Time", "Purpose", "Model", "In", "Out", "Ms", "Result")
	for _, e := range events {
		result := "ok"
		if !e.Success {
			result = "failed: " + truncate(e.ErrorMessage, 40)
		}
		fmt.Fprintf(w, "%-5d  %-19s  %-12s  %-28s  %6d  %6d  %6d  %s\n",
			e.ID, e.Timestamp.Local().Format(timeLayout), e.Purpose, truncate(e.Model, 28),
			e.InputTokens, e.OutputTokens, e.LatencyMs, result)
	}
}

func printLLMEvent(w io.Writer, e *store.LLMEvent) {
	fmt.Fprintf(w, "Call %d at %s\n", e.ID, e.Timestamp.Local().Format(timeLayout))
	fmt.Fprintf(w, "  provider  %s\n", e.Provider)
	fmt.Fprintf(w, "  model     %s\n", e.Model)
	fmt.Fprintf(w, "  purpose   %s\n", e.Purpose)
	fmt.Fprintf(w, "  tokens    %d in, %d out\n", e.InputTokens, e.OutputTokens)
	fmt.Fprintf(w, "  latency   %dms\n", e.LatencyMs)
	if e.Success {
		fmt.Fprintln(w, "  result    ok")
	} else {
		fmt.Fprintf(w, "  result    failed: %s\n", e.ErrorMessage)
	}

	for _, part := range []struct{ title, body string }{
		{"request", e.RequestBody},
		{"response", e.ResponseBody},
	} {
		fmt.Fprintf(w, "\n--- %s ---\n", part.title)
		if part.body == "" {
			fmt.Fprintln(w, "(empty)")
			continue
		}
		fmt.Fprintln(w, strings.TrimRight(part.body, "\n"))
	}
}

func printLLMUsage(w io.Writer, byPurpose, byModel []store.UsageStat) {
	if len(byPurpose) == 0 {
		fmt.Fprintln(w, "No LLM usage recorded yet.")
		return
	}

	var total store.UsageStat
	fmt.Fprintf(w, "%-14s  %6s  %5s  %10s  %10s  %7s\n", "Purpose", "Calls", "Fail", "Input", "Output", "Avg ms")
	for _, st := range byPurpose {
		fmt.Fprintf(w, "%-14s  %6d  %5d  %10d  %10d  %7d\n",
			st.Purpose, st.Calls, st.Failures, st.InputTokens, st.OutputTokens, st.AvgLatencyMs)
		total.Calls += st.Calls
		total.Failures += st.Failures
		total.InputTokens += st.InputTokens
		total.OutputTokens += st.OutputTokens
	}
	fmt.Fprintf(w, "%-14s  %6d  %5d  %10d  %10d\n", "total", total.Calls, total.Failures, total.InputTokens, total.OutputTokens)

	if len(byModel) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%-32s  %6s  %10s\n", "Model", "Calls", "Cost (USD)")
	var cost float64
	var unpriced []string
	for _, mu := range byModel {
		price := llm.LookupCost(mu.Model)
		if price == nil {
			unpriced = append(unpriced, mu.Model)
			fmt.Fprintf(w, "%-32s  %6d  %10s\n", truncate(mu.Model, 32), mu.Calls, "?")
			continue
		}
		c := price.Cost(mu.InputTokens, mu.OutputTokens)
		cost += c
		fmt.Fprintf(w, "%-32s  %6d  %10s\n", truncate(mu.Model, 32), mu.Calls, formatCost(c))
	}
	label := "total"
	if len(unpriced) > 0 {
		label = "total (priced models only)"
	}
	fmt.Fprintf(w, "%-32s  %6s  %10s\n", label, "", formatCost(cost))
}

func printGeminiModels(w io.Writer, available, configured []string) {
	for _, name := range available {
		rank := "-"
		if i := slices.Index(configured, name); i >= 0 {
			rank = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(w, "%2s  %s\n", rank, name)
	}
	fmt.Fprintln(w, "\nNumbered models are tried in that order (GQUIZ_LLM_GEMINI_MODELS).")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of calls to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Only show calls with this purpose (question-gen, refill)")
	llmListCmd.Flags().Bool("json", false, "Print one JSON object per call, without bodies")

	llmCmd.AddCommand(llmListCmd, llmViewCmd, llmStatsCmd, llmModelsCmd)
}
