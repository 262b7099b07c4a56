// Package gamma is the Polymarket Gamma market-data client. It is called
// once per run to seed the workflow state, and again by analysis tools for
// refreshed trading metrics.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Market is the normalized market document. Gamma encodes outcome lists and
// token IDs as JSON strings inside the JSON body; UnmarshalJSON flattens
// them into real slices.
type Market struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	Description string `json:"description"`
	ConditionID string `json:"conditionId"`

	Outcomes      []string `json:"outcomes"`
	OutcomePrices []string `json:"outcomePrices"`
	ClobTokenIDs  []string `json:"clobTokenIds"`

	LastTradePrice float64 `json:"lastTradePrice"`
	BestBid        float64 `json:"bestBid"`
	BestAsk        float64 `json:"bestAsk"`
	Spread         float64 `json:"spread"`

	Volume       float64 `json:"volume"`
	Volume24hr   float64 `json:"volume24hr"`
	Liquidity    float64 `json:"liquidity"`
	OneDayChange float64 `json:"oneDayPriceChange"`

	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
	OrderMinSize          float64 `json:"orderMinSize"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`
}

// rawMarket mirrors the wire format before string-encoded lists are decoded.
type rawMarket struct {
	ID          flexString `json:"id"`
	Question    string     `json:"question"`
	Description string     `json:"description"`
	ConditionID string     `json:"conditionId"`

	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`

	LastTradePrice float64 `json:"lastTradePrice"`
	BestBid        float64 `json:"bestBid"`
	BestAsk        float64 `json:"bestAsk"`
	Spread         float64 `json:"spread"`

	Volume       flexFloat `json:"volume"`
	Volume24hr   float64   `json:"volume24hr"`
	Liquidity    flexFloat `json:"liquidity"`
	OneDayChange float64   `json:"oneDayPriceChange"`

	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
	OrderMinSize          float64 `json:"orderMinSize"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`
}

// flexString accepts a JSON string or a bare JSON number. Gamma serves
// market IDs as numbers, but a Market re-encoded into a checkpoint carries
// them as strings; decode must accept both so state round-trips.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a string-encoded number; Gamma uses
// both representations for volume and liquidity fields.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		*f = flexFloat(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// stringList accepts either a JSON array of strings or a JSON-encoded string
// containing such an array, which is how Gamma serves outcomes and token IDs.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	if strings.TrimSpace(encoded) == "" {
		*l = nil
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return fmt.Errorf("decode nested list %q: %w", encoded, err)
	}
	*l = items
	return nil
}

func (m *Market) UnmarshalJSON(data []byte) error {
	var raw rawMarket
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Market{
		ID:                    string(raw.ID),
		Question:              raw.Question,
		Description:           raw.Description,
		ConditionID:           raw.ConditionID,
		Outcomes:              raw.Outcomes,
		OutcomePrices:         raw.OutcomePrices,
		ClobTokenIDs:          raw.ClobTokenIDs,
		LastTradePrice:        raw.LastTradePrice,
		BestBid:               raw.BestBid,
		BestAsk:               raw.BestAsk,
		Spread:                raw.Spread,
		Volume:                float64(raw.Volume),
		Volume24hr:            raw.Volume24hr,
		Liquidity:             float64(raw.Liquidity),
		OneDayChange:          raw.OneDayChange,
		OrderPriceMinTickSize: raw.OrderPriceMinTickSize,
		OrderMinSize:          raw.OrderMinSize,
		Active:                raw.Active,
		Closed:                raw.Closed,
	}
	return nil
}

// NormalizeOutcome maps a market outcome label onto YES/NO.
func NormalizeOutcome(outcome string) string {
	if strings.EqualFold(strings.TrimSpace(outcome), "yes") {
		return "YES"
	}
	return "NO"
}

// Client talks to the Gamma REST API.
type Client struct {
	http *resty.Client
}

func NewClient(host string) *Client {
	client := resty.New()
	client.SetBaseURL(host)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Accept", "application/json")

	return &Client{http: client}
}

// GetMarket fetches one market document by ID.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	if strings.TrimSpace(marketID) == "" {
		return nil, fmt.Errorf("market id is required")
	}

	var market Market
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&market).
		Get("/markets/" + marketID)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", marketID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch market %s: gamma returned %s", marketID, resp.Status())
	}
	return &market, nil
}
