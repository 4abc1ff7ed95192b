package cmd

import (
	"context"
	"encoding/csv"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetmerge/sheetmerge/internal/utils"
	"github.com/sheetmerge/sheetmerge/pkg/source"
	"github.com/sheetmerge/sheetmerge/pkg/table"
	"github.com/sheetmerge/sheetmerge/pkg/workflow"
)

// runCmd executes a workflow definition file.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow definition and print a preview of the output",
	Run: func(cmd *cobra.Command, args []string) {
		logLevelFromFlags(cmd)
		defPath, _ := cmd.Flags().GetString("workflow")
		csvOut, _ := cmd.Flags().GetString("csv")
		userID, _ := cmd.Flags().GetString("user")

		raw, err := os.ReadFile(defPath)
		if err != nil {
			utils.Log.Fatal("Reading workflow file: ", err)
		}
		def, err := workflow.ParseDefinition(raw)
		if err != nil {
			utils.Log.Fatal(err)
		}

		db, _, client, err := openServices(userID)
		if err != nil {
			utils.Log.Fatal(err)
		}
		defer db.Close()

		runner := &workflow.Runner{
			Resolver: &source.Resolver{Remote: client},
			DB:       db,
			Exporter: client,
			Log:      utils.Log,
		}
		res, err := runner.Run(context.Background(), def)
		if err != nil {
			utils.Log.Fatal("Run failed: ", err)
		}

		for _, w := range res.Warnings {
			utils.Log.Warn(w)
		}
		utils.Log.Infof("Output: %d rows x %d columns (run %s)", res.RowCount, len(res.Columns), res.RunID)
		if res.Handle != "" {
			utils.Log.Info("Exported to ", res.Handle)
		}
		printPreview(res)

		if csvOut != "" {
			if err := writeCSV(csvOut, res); err != nil {
				utils.Log.Fatal("Writing csv: ", err)
			}
			utils.Log.Info("Wrote ", csvOut)
		}
	},
}

func printPreview(res *workflow.Result) {
	w := csv.NewWriter(os.Stdout)
	w.Write(res.Columns)
	for _, row := range res.Preview {
		w.Write(cellStrings(row))
	}
	w.Flush()
}

func writeCSV(path string, res *workflow.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(res.Output.Columns); err != nil {
		return err
	}
	for _, row := range res.Output.Rows {
		if err := w.Write(cellStrings(row)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func cellStrings(row []table.Cell) []string {
	out := make([]string, len(row))
	for i, c := range row {
		if !c.Null {
			out[i] = c.Val
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("workflow", "w", "workflow.yaml", "Workflow definition file")
	runCmd.Flags().StringP("csv", "o", "", "Also write the full output table to this CSV file")
}
