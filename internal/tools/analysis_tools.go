package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/web3devz/polytrader/internal/clob"
	"github.com/web3devz/polytrader/internal/gamma"
	"github.com/web3devz/polytrader/internal/research"
)

// MarketSource serves market documents for the analysis tools.
type MarketSource interface {
	GetMarket(ctx context.Context, marketID string) (*gamma.Market, error)
}

// BookSource serves orderbook, trade, and price-history data.
type BookSource interface {
	GetOrderbook(ctx context.Context, tokenID string) (*clob.Orderbook, error)
	GetTrades(ctx context.Context, tokenID string, limit int) ([]clob.Trade, error)
	GetPriceHistory(ctx context.Context, tokenID string, interval string) ([]clob.PricePoint, error)
}

const (
	MarketDetailsTool = "analysis_get_market_details"
	OrderbookTool     = "analysis_get_multi_level_orderbook"
	MarketTradesTool  = "analysis_get_market_trades"
	HistoricalTool    = "analysis_get_historical_trends"
	ExternalNewsTool  = "analysis_get_external_news"
)

// NewAnalysisRegistry declares the tools available to the Analysis stage.
// marketID, question, and tokenIDs come from workflow state so the
// decision-maker cannot wander into other markets.
func NewAnalysisRegistry(markets MarketSource, books BookSource, researcher Researcher, marketID, question string, tokenIDs []string) *Registry {
	return NewRegistry(
		marketDetailsTool(markets, marketID),
		orderbookTool(books, tokenIDs),
		marketTradesTool(books, tokenIDs),
		historicalTrendsTool(books, tokenIDs),
		externalNewsTool(researcher, marketID, question),
	)
}

func marketDetailsTool(markets MarketSource, marketID string) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: MarketDetailsTool,
			Desc: "Get current prices, volumes, spreads, and market parameters for this market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"market_id": {
					Type: schema.String,
					Desc: "The market ID (defaults to the market under analysis)",
				},
			}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			market, err := markets.GetMarket(ctx, marketID)
			if err != nil {
				return "", err
			}

			metrics := map[string]any{
				"current_prices": map[string]any{
					"last_trade_price": market.LastTradePrice,
					"best_bid":         market.BestBid,
					"best_ask":         market.BestAsk,
					"spread":           market.Spread,
				},
				"volume_metrics": map[string]any{
					"total_volume": market.Volume,
					"volume_24h":   market.Volume24hr,
				},
				"liquidity_metrics": map[string]any{
					"liquidity": market.Liquidity,
				},
				"market_parameters": map[string]any{
					"min_tick_size":  market.OrderPriceMinTickSize,
					"min_order_size": market.OrderMinSize,
				},
				"price_changes": map[string]any{
					"24h_change": market.OneDayChange,
				},
				"outcomes": map[string]any{
					"options": market.Outcomes,
					"prices":  market.OutcomePrices,
				},
			}
			return marshalResult(metrics)
		},
	}
}

type orderbookArgs struct {
	Levels int `json:"levels"`
}

func orderbookTool(books BookSource, tokenIDs []string) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: OrderbookTool,
			Desc: "Analyze the multi-level orderbook for every token in the market: top levels, depth, spread, and mid price.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"levels": {
					Type: schema.Integer,
					Desc: "How many price levels per side to include (default 10)",
				},
			}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in orderbookArgs
			_ = json.Unmarshal(args, &in)
			if in.Levels <= 0 {
				in.Levels = 10
			}

			result := map[string]any{"token_ids": tokenIDs}
			orderbooks := map[string]any{}
			stats := map[string]any{}

			for _, tokenID := range tokenIDs {
				book, err := books.GetOrderbook(ctx, tokenID)
				if err != nil {
					return "", fmt.Errorf("orderbook for token %s: %w", tokenID, err)
				}

				bids := topLevels(book.Bids, in.Levels)
				asks := topLevels(book.Asks, in.Levels)
				bidDepth := sumDepth(bids)
				askDepth := sumDepth(asks)

				orderbooks[tokenID] = map[string]any{
					"top_bids": bids,
					"top_asks": asks,
					"depth": map[string]any{
						"bid_depth":   bidDepth,
						"ask_depth":   askDepth,
						"total_depth": bidDepth.Add(askDepth),
					},
				}

				tokenStats := map[string]any{
					"is_liquid": bidDepth.Add(askDepth).GreaterThan(decimal.NewFromInt(1000)),
				}
				if len(bids) > 0 && len(asks) > 0 {
					bestBid := bids[0].Price
					bestAsk := asks[0].Price
					tokenStats["best_bid"] = bestBid
					tokenStats["best_ask"] = bestAsk
					tokenStats["mid_price"] = bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
					tokenStats["spread"] = bestAsk.Sub(bestBid)
				}
				stats[tokenID] = tokenStats
			}

			result["orderbooks"] = orderbooks
			result["market_stats"] = stats
			return marshalResult(result)
		},
	}
}

type tradesArgs struct {
	Limit int `json:"limit"`
}

func marketTradesTool(books BookSource, tokenIDs []string) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: MarketTradesTool,
			Desc: "Get recent trades for every token in the market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"limit": {
					Type: schema.Integer,
					Desc: "How many recent trades per token (default 50)",
				},
			}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in tradesArgs
			_ = json.Unmarshal(args, &in)

			result := map[string]any{}
			for _, tokenID := range tokenIDs {
				trades, err := books.GetTrades(ctx, tokenID, in.Limit)
				if err != nil {
					return "", fmt.Errorf("trades for token %s: %w", tokenID, err)
				}
				result[tokenID] = trades
			}
			return marshalResult(result)
		},
	}
}

type historyArgs struct {
	Interval string `json:"interval"`
}

func historicalTrendsTool(books BookSource, tokenIDs []string) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: HistoricalTool,
			Desc: "Get sampled price history for every token in the market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"interval": {
					Type: schema.String,
					Desc: "Sampling interval, e.g. 1h or 1d (default 1d)",
				},
			}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in historyArgs
			_ = json.Unmarshal(args, &in)

			result := map[string]any{}
			for _, tokenID := range tokenIDs {
				history, err := books.GetPriceHistory(ctx, tokenID, in.Interval)
				if err != nil {
					return "", fmt.Errorf("price history for token %s: %w", tokenID, err)
				}
				result[tokenID] = history
			}
			return marshalResult(result)
		},
	}
}

type newsArgs struct {
	Query string `json:"query"`
}

// externalNewsTool surfaces recent news coverage for the market via a
// single shallow research pass.
func externalNewsTool(researcher Researcher, marketID, question string) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ExternalNewsTool,
			Desc: "Search for recent external news or coverage relevant to this market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type: schema.String,
					Desc: "Optional news query (defaults to the market question)",
				},
			}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in newsArgs
			_ = json.Unmarshal(args, &in)
			query := in.Query
			if query == "" {
				query = fmt.Sprintf("Recent news or coverage regarding: %s", question)
			}

			result, err := researcher.Run(ctx, research.Request{
				Query:   query,
				Breadth: 2,
				Depth:   1,
			})
			if err != nil {
				return "", fmt.Errorf("external news for market %s: %w", marketID, err)
			}

			return marshalResult(map[string]any{
				"market_id":     marketID,
				"external_news": result.Learnings,
				"sources":       result.VisitedURLs,
				"summary":       result.Report,
			})
		},
	}
}

func topLevels(levels []clob.Level, n int) []clob.Level {
	if len(levels) <= n {
		return levels
	}
	return levels[:n]
}

func sumDepth(levels []clob.Level) decimal.Decimal {
	depth := decimal.Zero
	for _, l := range levels {
		depth = depth.Add(l.Size)
	}
	return depth
}

func marshalResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(out), nil
}
