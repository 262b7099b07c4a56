package models

import (
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/web3devz/polytrader/internal/clob"
	"github.com/web3devz/polytrader/internal/gamma"
)

// TerminalDecision records how a run that reached a trade decision ended.
type TerminalDecision string

const (
	TerminalExecuted  TerminalDecision = "executed"
	TerminalCancelled TerminalDecision = "cancelled"
	TerminalFailed    TerminalDecision = "failed"
)

// RunInput is the descriptor a workflow run is created from.
type RunInput struct {
	MarketID             string                     `json:"market_id"`
	Positions            map[string]decimal.Decimal `json:"positions,omitempty"`
	AvailableFunds       *decimal.Decimal           `json:"available_funds,omitempty"`
	Debug                bool                       `json:"debug,omitempty"`
	ExternalConfirmation bool                       `json:"external_confirmation,omitempty"`
}

// RunOutput is what a finished (or suspended) run reports back.
type RunOutput struct {
	RunID    string           `json:"run_id"`
	Status   string           `json:"status"` // done, paused, or no_data
	Research *ResearchResult  `json:"research_result,omitempty"`
	Analysis *AnalysisResult  `json:"analysis_result,omitempty"`
	Decision *TradeDecision   `json:"trade_decision,omitempty"`
	Order    *clob.OrderResponse `json:"order_response,omitempty"`
	Confidence float64        `json:"confidence"`
	Terminal TerminalDecision `json:"terminal_decision,omitempty"`
	EndReason string          `json:"end_reason,omitempty"`
}

// WorkflowState is the single mutable record threaded through a run. It is
// owned by the controller; stages and gates mutate it only while the
// controller has invoked them. The whole struct serializes to JSON for
// checkpointing.
type WorkflowState struct {
	RunID                string `json:"run_id"`
	MarketID             string `json:"market_id"`
	Debug                bool   `json:"debug"`
	ExternalConfirmation bool   `json:"external_confirmation"`

	// Node is the controller position persisted across the suspension
	// boundary, so a restarted process resumes routing where it parked.
	Node string `json:"node"`

	Market *gamma.Market `json:"market,omitempty"`
	Tokens []Token       `json:"tokens,omitempty"`

	// Messages is the append-only conversation replayed to the
	// decision-maker on every stage invocation.
	Messages []*schema.Message `json:"messages"`

	// LoopStep counts stage invocations within the current stage. It is
	// reset to zero exactly at stage entry.
	LoopStep int `json:"loop_step"`

	// StageRetries counts reflection-gate rejections of the current stage,
	// compared against the global retry ceiling. Reset when a gate proceeds.
	StageRetries int `json:"stage_retries"`

	Research *ResearchResult `json:"research_result,omitempty"`
	Analysis *AnalysisResult `json:"analysis_result,omitempty"`
	Decision *TradeDecision  `json:"trade_decision,omitempty"`

	Positions      map[string]decimal.Decimal `json:"positions,omitempty"`
	AvailableFunds decimal.Decimal            `json:"available_funds"`

	UserConfirmation *bool               `json:"user_confirmation,omitempty"`
	Order            *clob.OrderResponse `json:"order_response,omitempty"`

	Terminal  TerminalDecision `json:"terminal_decision,omitempty"`
	EndReason string           `json:"end_reason,omitempty"`
}

// TokenFor returns the market token matching the given outcome label.
func (s *WorkflowState) TokenFor(outcome string) *Token {
	for i := range s.Tokens {
		if s.Tokens[i].Outcome == outcome {
			return &s.Tokens[i]
		}
	}
	return nil
}

// Position returns the held size for a token, zero when none is held.
func (s *WorkflowState) Position(tokenID string) decimal.Decimal {
	if s.Positions == nil {
		return decimal.Zero
	}
	return s.Positions[tokenID]
}

// HasPositions reports whether any token in this market is held.
func (s *WorkflowState) HasPositions() bool {
	for _, size := range s.Positions {
		if size.IsPositive() {
			return true
		}
	}
	return false
}

// Append adds messages to the conversation.
func (s *WorkflowState) Append(msgs ...*schema.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Output snapshots the run-visible result fields.
func (s *WorkflowState) Output(status string) *RunOutput {
	out := &RunOutput{
		RunID:     s.RunID,
		Status:    status,
		Research:  s.Research,
		Analysis:  s.Analysis,
		Decision:  s.Decision,
		Order:     s.Order,
		Terminal:  s.Terminal,
		EndReason: s.EndReason,
	}
	if s.Decision != nil {
		out.Confidence = s.Decision.Confidence
	}
	return out
}
