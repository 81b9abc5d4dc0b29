package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Time-gated DCA vault with an off-chain keeper",
	Long: `Keeper runs a vault that accepts deposits and, at most once per configured
interval, either pays custody out or swaps a fixed amount of it into another
asset. The serve command drives the check/perform cycle on a cron cadence and
exposes the vault over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", def, "path to config file")
}
