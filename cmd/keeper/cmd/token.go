package cmd

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"DCAKeeper/internal/api"
)

var (
	tokenCaller string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token for a caller address",
	Long: `Token signs a JWT with api.jwt_secret whose subject is the caller. The API
treats the subject as the depositing user or policy owner.

Example:
  keeper token --caller 0x1111111111111111111111111111111111111111 --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(tokenCaller) {
			return fmt.Errorf("--caller must be a hex address")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tok, err := api.NewValidator(cfg.API.JWTSecret).IssueToken(common.HexToAddress(tokenCaller), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenCaller, "caller", "", "caller address (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("caller")
}
