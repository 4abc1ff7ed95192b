package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetmerge/sheetmerge/internal/utils"
	"github.com/sheetmerge/sheetmerge/pkg/vault"
)

// tokenFile is the JSON shape the external OAuth login flow hands over.
type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// tokenCmd imports a token set produced by the login flow into the vault.
var tokenCmd = &cobra.Command{
	Use:   "token <token-file.json>",
	Short: "Import an OAuth token set into the encrypted credential vault",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logLevelFromFlags(cmd)
		userID, _ := cmd.Flags().GetString("user")

		raw, err := os.ReadFile(args[0])
		if err != nil {
			utils.Log.Fatal("Reading token file: ", err)
		}
		var tf tokenFile
		if err := json.Unmarshal(raw, &tf); err != nil {
			utils.Log.Fatal("Parsing token file: ", err)
		}
		if tf.AccessToken == "" {
			utils.Log.Fatal("Token file has no access_token")
		}

		db, v, _, err := openServices(userID)
		if err != nil {
			utils.Log.Fatal(err)
		}
		defer db.Close()

		err = v.Store(context.Background(), userID, vault.TokenSet{
			AccessToken:  tf.AccessToken,
			RefreshToken: tf.RefreshToken,
			Expiry:       tf.Expiry,
			Scopes:       tf.Scopes,
		})
		if err != nil {
			utils.Log.Fatal("Storing credential: ", err)
		}
		utils.Log.Info("Stored credential for user ", userID)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
