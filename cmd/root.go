package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/sheetmerge/sheetmerge/internal/utils"
	"github.com/sheetmerge/sheetmerge/pkg/remote"
	"github.com/sheetmerge/sheetmerge/pkg/storage"
	"github.com/sheetmerge/sheetmerge/pkg/vault"
)

var cfgFile string

const googleTokenURL = "https://oauth2.googleapis.com/token"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sheetmerge",
	Short: "Join and recompute spreadsheet data from local files and cloud sheets.",
	Long: `sheetmerge combines tabular data from uploaded workbooks, cloud-stored
spreadsheet files, and native cloud sheets into one output table via a
key-based join and per-column computation rules.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sheetmerge.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().StringP("user", "u", "default", "User id whose stored credential authenticates remote calls")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".sheetmerge")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			home, _ := homedir.Dir()
			configPath := home + "/.sheetmerge.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	viper.SetDefault("google.client_id", "")
	viper.SetDefault("google.client_secret", "")
	viper.SetDefault("vault.secret", "")
	viper.SetDefault("db", "sheetmerge.sqlite3")
}

// openServices wires the shared dependency chain: sqlite store, credential
// vault, and the remote client authenticated as the given user.
func openServices(userID string) (*storage.DB, *vault.Vault, *remote.Client, error) {
	db, err := storage.Open(viper.GetString("db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	secret := viper.GetString("vault.secret")
	if secret == "" {
		db.Close()
		return nil, nil, nil, fmt.Errorf("vault.secret is not configured; set it in %s", viper.ConfigFileUsed())
	}
	conf := &oauth2.Config{
		ClientID:     viper.GetString("google.client_id"),
		ClientSecret: viper.GetString("google.client_secret"),
		Endpoint:     oauth2.Endpoint{TokenURL: googleTokenURL},
	}
	v := vault.New(db, secret, conf)
	return db, v, remote.NewClient(v, userID), nil
}

func logLevelFromFlags(cmd *cobra.Command) {
	level, _ := cmd.Flags().GetString("loglevel")
	utils.SetLogLevel(level)
}
