package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/research"
)

// Researcher is the external deep-research collaborator.
type Researcher interface {
	Run(ctx context.Context, req research.Request) (*models.ResearchResult, error)
}

const DeepResearchTool = "deep_research"

type deepResearchArgs struct {
	Query   string `json:"query"`
	Breadth int    `json:"breadth"`
	Depth   int    `json:"depth"`
}

// NewResearchRegistry declares the tools available to the Research stage.
func NewResearchRegistry(researcher Researcher, defaultBreadth, defaultDepth int) *Registry {
	deepResearch := Tool{
		Info: &schema.ToolInfo{
			Name: DeepResearchTool,
			Desc: "Perform iterative web research on a query. Returns a report, key learnings, and visited sources.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "The research question, phrased to surface evidence for the market outcome",
					Required: true,
				},
				"breadth": {
					Type: schema.Integer,
					Desc: "How many parallel search directions to explore",
				},
				"depth": {
					Type: schema.Integer,
					Desc: "How many follow-up rounds to run per direction",
				},
			}),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in deepResearchArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("decode deep_research args: %w", err)
			}
			if in.Breadth <= 0 {
				in.Breadth = defaultBreadth
			}
			if in.Depth <= 0 {
				in.Depth = defaultDepth
			}

			result, err := researcher.Run(ctx, research.Request{
				Query:   in.Query,
				Breadth: in.Breadth,
				Depth:   in.Depth,
			})
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("encode research result: %w", err)
			}
			return string(out), nil
		},
	}

	return NewRegistry(deepResearch)
}
