package cli

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyConfirmer collects the human trade confirmation interactively.
type SurveyConfirmer struct{}

// Confirm renders the pending trade and asks for an explicit yes/no.
// Declining is the default so a stray Enter never sends an order.
func (SurveyConfirmer) Confirm(ctx context.Context, summary string) (bool, error) {
	fmt.Println(RenderPendingTrade(summary))

	var confirmed bool
	prompt := &survey.Confirm{
		Message: "Execute this trade?",
		Default: false,
		Help:    "Answering no cancels the trade; nothing is sent to the venue.",
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return confirmed, nil
}

// PromptForMarketID asks for a market to trade when none was given.
func PromptForMarketID() (string, error) {
	var marketID string
	prompt := &survey.Input{
		Message: "Enter the market ID to analyze:",
		Help:    "The numeric Gamma market identifier, e.g. 253591",
	}
	err := survey.AskOne(prompt, &marketID, survey.WithValidator(survey.Required))
	if err != nil {
		return "", err
	}
	return marketID, nil
}
