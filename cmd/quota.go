package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show the estimated free-tier quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		st := d.quota.Status()
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		gate := "open"
		if !st.Open {
			gate = "closed"
		}
		fmt.Printf("Gate:       %s\n", gate)
		fmt.Printf("Minute:     %d / %.1f (%d left)\n", st.MinuteCount, st.EstimatedMinuteCeiling, st.RemainingMinute)
		fmt.Printf("Day:        %d / %.1f (%d left, %.0f%%)\n", st.DayCount, st.EstimatedDayCeiling, st.RemainingDay, st.RemainingRatio*100)
		fmt.Printf("Day began:  %s\n", st.DayWindowStart.Local().Format(time.DateTime))
		if st.LastRateLimitedAt != nil {
			fmt.Printf("Last 429:   %s\n", st.LastRateLimitedAt.Local().Format(time.DateTime))
		}
		if st.LastError != "" {
			fmt.Printf("Last error: %s\n", st.LastError)
		}
		return nil
	},
}

func init() {
	quotaCmd.Flags().Bool("json", false, "Print the status as JSON")
}
