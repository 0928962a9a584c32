package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable
// for pasting into a trading journal. Structured facts go in a
// PROPERTIES drawer for easy search; narrative sections are left as
// placeholders.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Trade: %s %s (%s)", t.Instrument, t.Side, shortID(t.PositionID))
	open := t.OpenTime.UTC().Format(time.RFC3339)
	closed := t.CloseTime.UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":POSITION_ID: %s\n", t.PositionID))
	b.WriteString(fmt.Sprintf(":INSTRUMENT: %s\n", t.Instrument))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	b.WriteString(fmt.Sprintf(":QUANTITY: %.8f\n", t.Quantity))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.5f\n", t.ExitPrice))
	b.WriteString(fmt.Sprintf(":OPEN_TIME: %s\n", open))
	b.WriteString(fmt.Sprintf(":CLOSE_TIME: %s\n", closed))
	b.WriteString(fmt.Sprintf(":REALIZED_PL: %.2f\n", t.RealizedPL))
	b.WriteString(fmt.Sprintf(":FEES: %.2f\n", t.Fees))
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
