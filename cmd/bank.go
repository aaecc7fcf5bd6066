package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/balance"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Inspect the offline question bank",
}

var bankStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show questions per chapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd, false)
		if err != nil {
			return err
		}
		defer d.Close()

		bal := balance.New(d.bank)
		total := d.bank.Len()

		fmt.Printf("Bank: %s\n\n", d.bank.Path())
		fmt.Printf("%-32s  %6s  %6s\n", "Chapter", "Count", "Share")
		fmt.Println(strings.Repeat("─", 48))
		for _, ch := range d.bank.Chapters() {
			fmt.Printf("%-32s  %6d  %5.1f%%\n",
				truncate(ch, 32), d.bank.ChapterCounts()[ch], bal.Share(ch)*100)
		}
		fmt.Println(strings.Repeat("─", 48))
		fmt.Printf("%-32s  %6d\n", "TOTAL", total)

		if least := bal.LeastRepresented(d.cfg.Chapters); least != "" {
			fmt.Printf("\nNext refill target: %s\n", least)
		}
		return nil
	},
}

func init() {
	bankCmd.AddCommand(bankStatsCmd)
}
