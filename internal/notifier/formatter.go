package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/fund"
	"DCAKeeper/internal/model"
)

// FormatUpkeep renders a performed upkeep.
func FormatUpkeep(r model.UpkeepReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>Upkeep performed</b> | %s\n\n", r.PerformedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Run: <code>%s</code>\n", r.RunID)
	fmt.Fprintf(&b, "Mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "Amount in: %s\n", model.AmountString(r.AmountIn))
	if r.Swap != nil {
		fmt.Fprintf(&b, "Amount out: %s (fee %s)\n", model.AmountString(r.Swap.AmountOut), model.AmountString(r.Swap.Fee))
	}
	if r.PayoutErr != nil {
		fmt.Fprintf(&b, "Payout failed, output kept in custody: %s\n", html.EscapeString(r.PayoutErr.Error()))
		return b.String()
	}
	fmt.Fprintf(&b, "Recipient: <code>%s</code>\n", r.Recipient.Hex())
	return b.String()
}

// FormatFailure renders a failed keeper round.
func FormatFailure(err error) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>Upkeep failed</b>\n\n")
	fmt.Fprintf(&b, "Code: %s\n", xerrors.CodeOf(err))
	fmt.Fprintf(&b, "Error: %s\n", html.EscapeString(err.Error()))
	if xerrors.RetryableError(err) {
		b.WriteString("\nThe next tick will try again.")
	}
	return b.String()
}

// FormatStatus renders a vault snapshot.
func FormatStatus(st fund.Status) string {
	var b strings.Builder
	b.WriteString("📦 <b>Vault status</b>\n\n")
	fmt.Fprintf(&b, "Owner: <code>%s</code>\n", st.Owner)
	fmt.Fprintf(&b, "Mode: %s\n", st.Mode)
	fmt.Fprintf(&b, "Amount: %s\n", st.Amount)
	fmt.Fprintf(&b, "Interval: %s\n", time.Duration(st.IntervalSeconds)*time.Second)
	fmt.Fprintf(&b, "Custody: %s (%d users)\n", st.TotalFunds, st.Users)
	fmt.Fprintf(&b, "State: %s\n", st.State)
	if st.NextDue != 0 {
		fmt.Fprintf(&b, "Next due: %s\n", time.Unix(st.NextDue, 0).UTC().Format(time.RFC3339))
	}
	return b.String()
}
