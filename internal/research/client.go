// Package research is the client for the external deep-research service,
// which performs iterative web search and summarization on our behalf.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/web3devz/polytrader/internal/models"
)

// Request carries the query plus breadth/depth knobs for the iterative
// search.
type Request struct {
	Query   string `json:"query"`
	Breadth int    `json:"breadth"`
	Depth   int    `json:"depth"`
}

// Client talks to the deep-research HTTP service.
type Client struct {
	http *resty.Client
}

func NewClient(host string) *Client {
	client := resty.New()
	client.SetBaseURL(host)
	// Deep research fans out into many web searches; allow it time.
	client.SetTimeout(5 * time.Minute)
	client.SetHeader("Content-Type", "application/json")

	return &Client{http: client}
}

// Run performs one deep-research pass and returns the structured report.
func (c *Client) Run(ctx context.Context, req Request) (*models.ResearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("research query is required")
	}
	if req.Breadth <= 0 {
		req.Breadth = 4
	}
	if req.Depth <= 0 {
		req.Depth = 2
	}

	var result models.ResearchResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/research")
	if err != nil {
		return nil, fmt.Errorf("deep research: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("deep research: service returned %s", resp.Status())
	}
	return &result, nil
}
