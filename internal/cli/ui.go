package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/web3devz/polytrader/internal/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	pendingStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#F59E0B")).
		Padding(1, 2).
		Width(72)

	executedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	cancelledStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Bold(true)

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3B82F6"))
)

// RenderPendingTrade frames the parked trade summary for the terminal.
func RenderPendingTrade(summary string) string {
	header := titleStyle.Render("Trade awaiting confirmation")
	return header + "\n" + pendingStyle.Render(strings.TrimRight(summary, "\n"))
}

// RenderOutput prints the final run result.
func RenderOutput(out *models.RunOutput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Run:"), out.RunID)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Status:"), out.Status)

	switch out.Terminal {
	case models.TerminalExecuted:
		b.WriteString(executedStyle.Render("Trade executed") + "\n")
		if out.Order != nil {
			fmt.Fprintf(&b, "%s %s (%s)\n", labelStyle.Render("Order:"), out.Order.OrderID, out.Order.Status)
		}
	case models.TerminalCancelled:
		b.WriteString(cancelledStyle.Render("Trade cancelled") + "\n")
	case models.TerminalFailed:
		b.WriteString(failedStyle.Render("Trade failed") + "\n")
	}

	if out.Decision != nil {
		fmt.Fprintf(&b, "%s %s (confidence %.2f)\n", labelStyle.Render("Decision:"), out.Decision.String(), out.Confidence)
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Reason:"), out.Decision.Reason)
	}
	if out.EndReason != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("End reason:"), out.EndReason)
	}
	return b.String()
}
