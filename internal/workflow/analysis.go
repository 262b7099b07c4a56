package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/tools"
)

// SubmitAnalysisTool is the completion tool of the Analysis stage.
const SubmitAnalysisTool = "submit_analysis"

var submitAnalysisInfo = &schema.ToolInfo{
	Name: SubmitAnalysisTool,
	Desc: "Submit the finished quantitative market analysis for review.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"analysis_summary": {
			Type:     schema.String,
			Desc:     "Overall summary of the market's quantitative condition",
			Required: true,
		},
		"confidence": {
			Type:     schema.Number,
			Desc:     "Confidence in the analysis, 0 to 1",
			Required: true,
		},
		"market_metrics": {
			Type: schema.Object,
			SubParams: map[string]*schema.ParameterInfo{
				"price_analysis":     {Type: schema.String, Desc: "Current prices, spread, and recent movement"},
				"volume_analysis":    {Type: schema.String, Desc: "Trading volume and activity"},
				"liquidity_analysis": {Type: schema.String, Desc: "Liquidity available on the book"},
			},
			Required: true,
		},
		"orderbook_analysis": {
			Type: schema.Object,
			SubParams: map[string]*schema.ParameterInfo{
				"market_depth":           {Type: schema.String, Desc: "Depth on each side of the book"},
				"execution_analysis":     {Type: schema.String, Desc: "Expected slippage and fill quality"},
				"liquidity_distribution": {Type: schema.String, Desc: "Where resting liquidity concentrates"},
			},
		},
		"trading_signals": {
			Type: schema.Object,
			SubParams: map[string]*schema.ParameterInfo{
				"price_momentum":    {Type: schema.String, Desc: "Directional momentum signals"},
				"market_efficiency": {Type: schema.String, Desc: "Mispricing relative to research findings"},
				"risk_factors":      {Type: schema.String, Desc: "Risks that could invalidate the read"},
			},
		},
		"execution_recommendation": {
			Type: schema.Object,
			SubParams: map[string]*schema.ParameterInfo{
				"optimal_size":   {Type: schema.String, Desc: "Position size the book can absorb"},
				"entry_strategy": {Type: schema.String, Desc: "How to enter without moving the market"},
				"key_levels":     {Type: schema.String, Desc: "Price levels that matter"},
			},
		},
	}),
}

func (c *Controller) analysisSpec(state *models.WorkflowState) stageSpec {
	tokenIDs := make([]string, 0, len(state.Tokens))
	for _, tok := range state.Tokens {
		tokenIDs = append(tokenIDs, tok.TokenID)
	}
	var question string
	if state.Market != nil {
		question = state.Market.Question
	}
	return stageSpec{
		node:       NodeAnalysis,
		toolsNode:  NodeAnalysisTools,
		reflect:    NodeReflectAnalysis,
		loopLimit:  c.cfg.MaxLoops,
		registry:   tools.NewAnalysisRegistry(c.markets, c.books, c.researcher, state.MarketID, question, tokenIDs),
		completion: submitAnalysisInfo,
		messages:   analysisMessages,
		accept:     acceptAnalysis,
	}
}

func analysisMessages(state *models.WorkflowState) []*schema.Message {
	m := state.Market
	prompt := fmt.Sprintf(`You are a quantitative market analyst for a prediction market. Analyze
the market's tradability: price action, volume, orderbook depth, and
execution conditions.

Market question: %s
Outcomes: %s (prices: %s)
Last trade: %.4f  Best bid: %.4f  Best ask: %.4f  Spread: %.4f
Volume (24h): %.2f  Liquidity: %.2f

Use the analysis tools to inspect the live orderbook, recent trades, and
historical price trends before concluding. When the analysis is complete,
call %s with your findings.`,
		m.Question,
		strings.Join(m.Outcomes, ", "), strings.Join(m.OutcomePrices, ", "),
		m.LastTradePrice, m.BestBid, m.BestAsk, m.Spread,
		m.Volume24hr, m.Liquidity,
		SubmitAnalysisTool)

	return []*schema.Message{schema.SystemMessage(prompt)}
}

func acceptAnalysis(state *models.WorkflowState, args json.RawMessage) error {
	var result models.AnalysisResult
	if err := json.Unmarshal(args, &result); err != nil {
		return err
	}
	if result.Summary == "" {
		return errors.New("analysis_summary must not be empty")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	state.Analysis = &result
	return nil
}
