package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade decision.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideNoTrade Side = "NO_TRADE"
)

// Token is one tradable outcome token of a binary market.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"` // YES or NO
}

// TradeDecision is the structured result of the Trade stage. Outcome and
// TokenID are only meaningful for BUY/SELL; Size is USDC for buys and
// shares for sells.
type TradeDecision struct {
	Side             Side            `json:"side"`
	Outcome          string          `json:"outcome,omitempty"`
	TokenID          string          `json:"token_id"`
	MarketID         string          `json:"market_id"`
	Size             decimal.Decimal `json:"size"`
	Confidence       float64         `json:"confidence"`
	Reason           string          `json:"reason"`
	MarketEvaluation string          `json:"trade_evaluation_of_market_data,omitempty"`
}

func (d *TradeDecision) String() string {
	if d.Side == SideNoTrade {
		return "NO_TRADE"
	}
	return fmt.Sprintf("%s_%s size=%s", d.Side, d.Outcome, d.Size.String())
}

// IsActionable reports whether the decision risks capital and therefore
// requires human confirmation before execution.
func (d *TradeDecision) IsActionable() bool {
	return d.Side == SideBuy || d.Side == SideSell
}

// ResearchResult is the structured result of the Research stage.
type ResearchResult struct {
	Report      string   `json:"report"`
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visited_urls"`
}

// AnalysisResult is the structured result of the Analysis stage.
type AnalysisResult struct {
	Summary    string  `json:"analysis_summary"`
	Confidence float64 `json:"confidence"`

	MarketMetrics struct {
		PriceAnalysis     string `json:"price_analysis"`
		VolumeAnalysis    string `json:"volume_analysis"`
		LiquidityAnalysis string `json:"liquidity_analysis"`
	} `json:"market_metrics"`

	Orderbook struct {
		MarketDepth           string `json:"market_depth"`
		ExecutionAnalysis     string `json:"execution_analysis"`
		LiquidityDistribution string `json:"liquidity_distribution"`
	} `json:"orderbook_analysis"`

	TradingSignals struct {
		PriceMomentum    string `json:"price_momentum"`
		MarketEfficiency string `json:"market_efficiency"`
		RiskFactors      string `json:"risk_factors"`
	} `json:"trading_signals"`

	ExecutionRecommendation struct {
		OptimalSize   string `json:"optimal_size"`
		EntryStrategy string `json:"entry_strategy"`
		KeyLevels     string `json:"key_levels"`
	} `json:"execution_recommendation"`
}
