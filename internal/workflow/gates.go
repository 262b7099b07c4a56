package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/llm"
	"github.com/web3devz/polytrader/internal/models"
)

// VerdictTool is the completion tool every reflection gate answers with.
const VerdictTool = "submit_verdict"

var verdictInfo = &schema.ToolInfo{
	Name: VerdictTool,
	Desc: "Submit your evaluation verdict on the candidate result.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"reason": {
			Type:     schema.Array,
			ElemInfo: &schema.ParameterInfo{Type: schema.String},
			Desc:     "Reasons supporting the verdict",
			Required: true,
		},
		"is_satisfactory": {
			Type:     schema.Boolean,
			Desc:     "Whether the result is good enough to proceed on",
			Required: true,
		},
		"improvement_instructions": {
			Type: schema.String,
			Desc: "Concrete instructions for the retry; empty when satisfactory",
		},
	}),
}

// satisfaction is the wire form of a gate verdict.
type satisfaction struct {
	Reasons      []string `json:"reason"`
	Satisfactory bool     `json:"is_satisfactory"`
	Improvement  string   `json:"improvement_instructions"`
}

func (s satisfaction) verdict() models.Verdict {
	if s.Satisfactory {
		return models.Proceed(s.Reasons...)
	}
	return models.Retry(s.Improvement, s.Reasons...)
}

// askGate runs one reflection call: a system charge, the candidate to
// judge, and a forced verdict submission.
func (c *Controller) askGate(ctx context.Context, charge string, candidate any) (models.Verdict, error) {
	body, err := json.Marshal(candidate)
	if err != nil {
		return models.Verdict{}, err
	}
	msgs := []*schema.Message{
		schema.SystemMessage(charge),
		schema.UserMessage("Candidate result:\n" + string(body)),
	}
	var s satisfaction
	if err := llm.Structured(ctx, c.decider, msgs, verdictInfo, &s); err != nil {
		return models.Verdict{}, err
	}
	return s.verdict(), nil
}

// routeVerdict applies the shared gate routing: proceed advances, retry
// loops the stage until the global ceiling, abort ends the run. Gate
// feedback is answered onto the candidate's completion call so the
// decision-maker sees it in-thread on the next invocation.
func (c *Controller) routeVerdict(state *models.WorkflowState, verdict models.Verdict, completionName string, stage, next Node, clearCandidate func(*models.WorkflowState)) Node {
	callID := lastCompletionCall(state, completionName)

	switch verdict.Kind {
	case models.VerdictProceed:
		note := "accepted"
		if len(verdict.Reasons) > 0 {
			note += ": " + strings.Join(verdict.Reasons, "; ")
		}
		state.Append(models.ToolResultMessage(callID, completionName, note, false))
		return next

	case models.VerdictRetry:
		state.StageRetries++
		state.Append(models.ToolResultMessage(callID, completionName, verdict.RejectionText(), true))
		if state.StageRetries >= c.cfg.MaxLoops {
			state.EndReason = fmt.Sprintf("retry ceiling reached in %s", stage)
			log.Printf("[Workflow] run %s: %s", state.RunID, state.EndReason)
			if clearCandidate != nil {
				clearCandidate(state)
			}
			return NodeEnd
		}
		if clearCandidate != nil {
			clearCandidate(state)
		}
		state.LoopStep = 0
		return stage

	default: // abort
		state.EndReason = strings.Join(verdict.Reasons, "; ")
		state.Append(models.ToolResultMessage(callID, completionName, "aborted: "+state.EndReason, true))
		return NodeEnd
	}
}

func (c *Controller) reflectResearch(ctx context.Context, state *models.WorkflowState) (Node, error) {
	clear := func(s *models.WorkflowState) { s.Research = nil }

	if state.Research == nil {
		verdict := models.Retry("Submit a research report via " + SubmitResearchTool + ".")
		return c.routeVerdict(state, verdict, SubmitResearchTool, NodeResearch, NodeAnalysis, clear), nil
	}

	charge := fmt.Sprintf(`You review research reports for a prediction market on the question:
%q. Judge whether the report is thorough, recent, and specific enough to
base a trading decision on. Reject vague, stale, or off-topic research.`,
		state.Market.Question)

	verdict, err := c.askGate(ctx, charge, state.Research)
	if err != nil {
		log.Printf("[Workflow] run %s: research gate failed: %v", state.RunID, err)
		verdict = models.Retry("", "research review unavailable: "+err.Error())
	}
	return c.routeVerdict(state, verdict, SubmitResearchTool, NodeResearch, NodeAnalysis, clear), nil
}

func (c *Controller) reflectAnalysis(ctx context.Context, state *models.WorkflowState) (Node, error) {
	clear := func(s *models.WorkflowState) { s.Analysis = nil }

	if state.Analysis == nil {
		verdict := models.Retry("Submit an analysis via " + SubmitAnalysisTool + ".")
		return c.routeVerdict(state, verdict, SubmitAnalysisTool, NodeAnalysis, NodeTrade, clear), nil
	}

	charge := fmt.Sprintf(`You review quantitative market analyses for a prediction market on the
question: %q. Judge whether the analysis grounds its claims in actual
orderbook, volume, and price data, and whether its execution guidance is
usable. Reject analyses that assert without evidence.`,
		state.Market.Question)

	verdict, err := c.askGate(ctx, charge, state.Analysis)
	if err != nil {
		log.Printf("[Workflow] run %s: analysis gate failed: %v", state.RunID, err)
		verdict = models.Retry("", "analysis review unavailable: "+err.Error())
	}
	return c.routeVerdict(state, verdict, SubmitAnalysisTool, NodeAnalysis, NodeTrade, clear), nil
}

// reflectTrade gates the trade decision. Deterministic validation runs
// first and its failures always loop the stage; the model verdict is then
// advisory for actionable trades, because a human confirms every
// capital-risking action at the suspension boundary anyway.
func (c *Controller) reflectTrade(ctx context.Context, state *models.WorkflowState) (Node, error) {
	if reasons := ValidateDecision(state, state.Decision); len(reasons) > 0 {
		verdict := models.Retry("Fix the decision and submit it again.", reasons...)
		return c.routeVerdict(state, verdict, SubmitTradeTool, NodeTrade, NodeSuspend, nil), nil
	}

	if state.Market != nil && state.Market.Closed {
		verdict := models.Abort("market closed before execution")
		return c.routeVerdict(state, verdict, SubmitTradeTool, NodeTrade, NodeSuspend, nil), nil
	}

	charge := fmt.Sprintf(`You review trade decisions for a prediction market on the question: %q.
Judge whether the decision follows from the research and analysis, whether
the sizing is prudent, and whether the stated reason actually supports the
chosen side. Available funds: %s USDC.`,
		state.Market.Question, state.AvailableFunds.String())

	verdict, err := c.askGate(ctx, charge, state.Decision)
	if err != nil {
		log.Printf("[Workflow] run %s: trade gate failed: %v", state.RunID, err)
		verdict = models.Retry("", "trade review unavailable: "+err.Error())
	}

	if state.Decision.IsActionable() {
		// A human confirms every BUY/SELL; a lukewarm model verdict must
		// not bypass that confirmation, nor block a valid decision from
		// reaching it.
		callID := lastCompletionCall(state, SubmitTradeTool)
		note := "decision validated, awaiting human confirmation"
		if len(verdict.Reasons) > 0 {
			note += " (review: " + strings.Join(verdict.Reasons, "; ") + ")"
		}
		state.Append(models.ToolResultMessage(callID, SubmitTradeTool, note, false))
		return NodeSuspend, nil
	}

	if verdict.Kind == models.VerdictProceed {
		state.EndReason = "no trade"
		callID := lastCompletionCall(state, SubmitTradeTool)
		state.Append(models.ToolResultMessage(callID, SubmitTradeTool, "accepted: no trade", false))
		return NodeEnd, nil
	}
	return c.routeVerdict(state, verdict, SubmitTradeTool, NodeTrade, NodeSuspend, nil), nil
}

// ValidateDecision applies the deterministic trade rules. It returns the
// full list of violations so a retry can fix them all at once, and fills
// in the token ID for the chosen outcome as a side effect.
func ValidateDecision(state *models.WorkflowState, d *models.TradeDecision) []string {
	if d == nil {
		return []string{"no trade decision was submitted"}
	}

	var reasons []string

	switch d.Side {
	case models.SideBuy, models.SideSell, models.SideNoTrade:
	default:
		reasons = append(reasons, fmt.Sprintf("invalid side %q, must be BUY, SELL, or NO_TRADE", d.Side))
	}
	if d.Reason == "" {
		reasons = append(reasons, "a reason for the decision is required")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f out of range, must be between 0 and 1", d.Confidence))
	}
	if d.MarketID == "" {
		reasons = append(reasons, "market_id is required")
	}

	if d.Side == models.SideNoTrade {
		if !d.Size.IsZero() {
			reasons = append(reasons, "size must be 0 for NO_TRADE")
		}
		return reasons
	}

	if d.Outcome != "YES" && d.Outcome != "NO" {
		reasons = append(reasons, "must specify YES or NO outcome when buying or selling")
		return reasons
	}
	token := state.TokenFor(d.Outcome)
	if token == nil {
		reasons = append(reasons, fmt.Sprintf("no token found for outcome %s", d.Outcome))
		return reasons
	}
	d.TokenID = token.TokenID

	if !d.Size.IsPositive() {
		reasons = append(reasons, "size must be positive for BUY and SELL")
	}

	switch d.Side {
	case models.SideBuy:
		if d.Size.GreaterThan(state.AvailableFunds) {
			reasons = append(reasons, fmt.Sprintf("cannot BUY with size %s exceeding available funds %s",
				d.Size.String(), state.AvailableFunds.String()))
		}
	case models.SideSell:
		held := state.Position(token.TokenID)
		if !held.IsPositive() {
			reasons = append(reasons, fmt.Sprintf("cannot SELL %s token, no position held", d.Outcome))
		} else if d.Size.GreaterThan(held) {
			reasons = append(reasons, fmt.Sprintf("cannot SELL %s %s tokens, only %s held",
				d.Size.String(), d.Outcome, held.String()))
		}
	}
	return reasons
}
