package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/tools"
)

// Completion and working tools of the Trade stage.
const (
	SubmitTradeTool = "submit_trade_decision"
	PortfolioTool   = "trade_get_portfolio"
)

// legalSides returns the sides the decision-maker may choose. SELL is only
// offered when a position in this market is actually held.
func legalSides(state *models.WorkflowState) []models.Side {
	sides := []models.Side{models.SideBuy, models.SideNoTrade}
	if state.HasPositions() {
		sides = append(sides, models.SideSell)
	}
	return sides
}

func submitTradeInfo(sides []models.Side) *schema.ToolInfo {
	enum := make([]string, len(sides))
	for i, s := range sides {
		enum[i] = string(s)
	}
	return &schema.ToolInfo{
		Name: SubmitTradeTool,
		Desc: "Submit the final trade decision for this market.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"side": {
				Type:     schema.String,
				Enum:     enum,
				Desc:     "Trade direction; NO_TRADE when no edge exists",
				Required: true,
			},
			"outcome": {
				Type: schema.String,
				Enum: []string{"YES", "NO"},
				Desc: "Outcome token to trade; required for BUY and SELL",
			},
			"market_id": {
				Type:     schema.String,
				Desc:     "Market identifier this decision applies to",
				Required: true,
			},
			"size": {
				Type:     schema.Number,
				Desc:     "USDC amount for BUY, share count for SELL, 0 for NO_TRADE",
				Required: true,
			},
			"confidence": {
				Type:     schema.Number,
				Desc:     "Confidence in the decision, 0 to 1",
				Required: true,
			},
			"reason": {
				Type:     schema.String,
				Desc:     "Why this trade, grounded in the research and analysis",
				Required: true,
			},
			"trade_evaluation_of_market_data": {
				Type: schema.String,
				Desc: "How the market data supports or undercuts the trade",
			},
		}),
	}
}

func (c *Controller) tradeSpec(state *models.WorkflowState) stageSpec {
	return stageSpec{
		node:       NodeTrade,
		toolsNode:  NodeTradeTools,
		reflect:    NodeReflectTrade,
		loopLimit:  c.cfg.MaxLoops,
		registry:   tools.NewRegistry(portfolioTool(state)),
		completion: submitTradeInfo(legalSides(state)),
		messages:   tradeMessages,
		accept:     acceptTrade,
	}
}

// portfolioTool exposes the run's funds and positions snapshot so the
// decision-maker can size trades against what is actually available.
func portfolioTool(state *models.WorkflowState) tools.Tool {
	return tools.Tool{
		Info: &schema.ToolInfo{
			Name:        PortfolioTool,
			Desc:        "Get available funds and current positions in this market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			positions := make(map[string]string, len(state.Positions))
			for tokenID, size := range state.Positions {
				positions[tokenID] = size.String()
			}
			out, err := json.Marshal(map[string]any{
				"available_funds": state.AvailableFunds.String(),
				"positions":       positions,
			})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

func tradeMessages(state *models.WorkflowState) []*schema.Message {
	m := state.Market

	var tokens strings.Builder
	for _, tok := range state.Tokens {
		held := state.Position(tok.TokenID)
		fmt.Fprintf(&tokens, "  %s: token_id=%s held=%s\n", tok.Outcome, tok.TokenID, held.String())
	}

	sides := legalSides(state)
	sideNames := make([]string, len(sides))
	for i, s := range sides {
		sideNames[i] = string(s)
	}

	report := "(no research report)"
	if state.Research != nil {
		report = state.Research.Report
	}
	analysis := "(no analysis)"
	if state.Analysis != nil {
		analysis = state.Analysis.Summary
	}

	prompt := fmt.Sprintf(`You are the trade decision-maker for a prediction market. Decide whether
to trade, and how, based on the research and analysis below.

Market question: %s (market_id: %s)
Outcome tokens:
%s
Available funds: %s USDC
Allowed sides: %s

Research report:
%s

Market analysis:
%s

Rules: BUY size is in USDC and must not exceed available funds. SELL size
is in shares and must not exceed the held position. Choose NO_TRADE when
the evidence does not support risking capital. Use %s to check the
portfolio, then call %s with your decision.`,
		m.Question, state.MarketID,
		tokens.String(),
		state.AvailableFunds.String(),
		strings.Join(sideNames, ", "),
		report,
		analysis,
		PortfolioTool, SubmitTradeTool)

	return []*schema.Message{schema.SystemMessage(prompt)}
}

// tradeArgs is the wire form of the completion call; size and confidence
// arrive as JSON numbers.
type tradeArgs struct {
	Side             string      `json:"side"`
	Outcome          string      `json:"outcome"`
	TokenID          string      `json:"token_id"`
	MarketID         string      `json:"market_id"`
	Size             json.Number `json:"size"`
	Confidence       float64     `json:"confidence"`
	Reason           string      `json:"reason"`
	MarketEvaluation string      `json:"trade_evaluation_of_market_data"`
}

func acceptTrade(state *models.WorkflowState, args json.RawMessage) error {
	var raw tradeArgs
	if err := json.Unmarshal(args, &raw); err != nil {
		return err
	}

	size := decimal.Zero
	if raw.Size != "" {
		parsed, err := decimal.NewFromString(raw.Size.String())
		if err != nil {
			return fmt.Errorf("size: %w", err)
		}
		size = parsed
	}
	if raw.Side == "" {
		return errors.New("side is required")
	}

	state.Decision = &models.TradeDecision{
		Side:             models.Side(raw.Side),
		Outcome:          strings.ToUpper(raw.Outcome),
		TokenID:          raw.TokenID,
		MarketID:         raw.MarketID,
		Size:             size,
		Confidence:       raw.Confidence,
		Reason:           raw.Reason,
		MarketEvaluation: raw.MarketEvaluation,
	}
	return nil
}
