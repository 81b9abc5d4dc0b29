package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"DCAKeeper/internal/fund"
	"DCAKeeper/internal/scheduler"
)

var checkPerform bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate checkUpkeep, optionally performing once",
	Long: `Check prints whether upkeep is due and the performData the keeper would
submit. With --perform a due upkeep is executed once, with the configured retries.

Example:
  keeper check --perform`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkPerform, "perform", false, "perform the upkeep when due")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, checkPerform)
	if err != nil {
		return err
	}
	defer a.close()

	due, data, err := a.vault.CheckUpkeep(ctx, nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "upkeep needed: %t\n", due)
	if !due {
		return nil
	}
	pd, err := fund.DecodePerformData(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "perform data:  0x%s\n", hex.EncodeToString(data))
	fmt.Fprintf(out, "  source: %s\n  dest:   %s\n  amount: %s\n", pd.SourceAsset.Hex(), pd.DestAsset.Hex(), pd.Amount.Dec())
	if !checkPerform {
		return nil
	}

	sched := scheduler.NewScheduler(ctx, a.vault, a.logger.Named("scheduler"),
		scheduler.WithRetries(a.cfg.Schedule.Retries, 0),
		scheduler.WithBreaker(a.breakerOpen))
	report, outcome, err := sched.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("perform upkeep (%s): %w", outcome, err)
	}
	fmt.Fprintf(out, "performed run %s: %s %s to %s\n", report.RunID, report.Mode, report.AmountIn.Dec(), report.Recipient.Hex())
	if report.Swap != nil {
		fmt.Fprintf(out, "  swapped for %s (fee %s)\n", report.Swap.AmountOut.Dec(), report.Swap.Fee.Dec())
	}
	if report.PayoutErr != nil {
		fmt.Fprintf(out, "  payout failed, output kept in custody: %v\n", report.PayoutErr)
	}
	return nil
}
