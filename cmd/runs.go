package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sheetmerge/sheetmerge/internal/utils"
	"github.com/sheetmerge/sheetmerge/pkg/storage"
)

// runsCmd prints recent run records, newest first.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run history",
	Run: func(cmd *cobra.Command, args []string) {
		logLevelFromFlags(cmd)
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := storage.Open(viper.GetString("db"))
		if err != nil {
			utils.Log.Fatal(err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), limit)
		if err != nil {
			utils.Log.Fatal(err)
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %s  %-9s  sources=[%s]",
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.ID, r.Status, strings.Join(r.Sources, ", "))
			if r.Status == storage.RunFailed {
				line += "  error=" + r.Error
			}
			if len(r.Warnings) > 0 {
				line += fmt.Sprintf("  warnings=%d", len(r.Warnings))
			}
			if r.OutputHandle != "" {
				line += "  output=" + r.OutputHandle
			}
			fmt.Println(line)
		}
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
}
