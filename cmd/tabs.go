package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sheetmerge/sheetmerge/internal/utils"
)

// tabsCmd lists the tabs of a native spreadsheet document.
var tabsCmd = &cobra.Command{
	Use:   "tabs <spreadsheet-id>",
	Short: "List the tabs of a spreadsheet",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logLevelFromFlags(cmd)
		userID, _ := cmd.Flags().GetString("user")

		db, _, client, err := openServices(userID)
		if err != nil {
			utils.Log.Fatal(err)
		}
		defer db.Close()

		tabs, err := client.ListTabs(context.Background(), args[0])
		if err != nil {
			utils.Log.Fatal(err)
		}
		for _, t := range tabs {
			fmt.Printf("%d\t%s\t(sheet id %d)\n", t.Index, t.Title, t.SheetID)
		}
	},
}

func init() {
	rootCmd.AddCommand(tabsCmd)
}
