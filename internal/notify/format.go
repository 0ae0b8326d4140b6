package notify

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatAmount renders a base-unit amount in whole tokens, for example
// 1500000000000000000 with 18 decimals as "1.5".
func FormatAmount(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}

// ProjectFinished describes a resolved project.
func ProjectFinished(projectID uint64, name, winner string, pool *uint256.Int, symbol string, decimals uint8) (title, message string) {
	return fmt.Sprintf("Project #%d finished", projectID),
		fmt.Sprintf("%s resolved to %q. Pool: %s %s", name, winner, FormatAmount(pool, decimals), symbol)
}

// LargeClaim describes a payout at or above the alert threshold.
func LargeClaim(projectID uint64, account string, payout *uint256.Int, tickets int, symbol string, decimals uint8) (title, message string) {
	return fmt.Sprintf("Large claim on project #%d", projectID),
		fmt.Sprintf("%s claimed %s %s over %d ticket(s)", account, FormatAmount(payout, decimals), symbol, tickets)
}

// JournalFailure reports a call that could not be made durable.
func JournalFailure(method string, err error) (title, message string) {
	return "Journal append failed", fmt.Sprintf("%s was rolled back: %v", method, err)
}
