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

// SubmitResearchTool is the completion tool of the Research stage.
const SubmitResearchTool = "submit_research"

var submitResearchInfo = &schema.ToolInfo{
	Name: SubmitResearchTool,
	Desc: "Submit the finished research report for review. Call this once external research is complete.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"report": {
			Type:     schema.String,
			Desc:     "Full markdown research report covering recent news and evidence on the market question",
			Required: true,
		},
		"learnings": {
			Type:     schema.Array,
			ElemInfo: &schema.ParameterInfo{Type: schema.String},
			Desc:     "Key factual learnings extracted from the research",
			Required: true,
		},
		"visited_urls": {
			Type:     schema.Array,
			ElemInfo: &schema.ParameterInfo{Type: schema.String},
			Desc:     "Source URLs visited while researching",
		},
	}),
}

func (c *Controller) researchSpec(state *models.WorkflowState) stageSpec {
	return stageSpec{
		node:       NodeResearch,
		toolsNode:  NodeResearchTools,
		reflect:    NodeReflectResearch,
		loopLimit:  c.cfg.ResearchLoopLimit,
		registry:   tools.NewResearchRegistry(c.researcher, c.cfg.ResearchBreadth, c.cfg.ResearchDepth),
		completion: submitResearchInfo,
		messages:   researchMessages,
		accept:     acceptResearch,
	}
}

func researchMessages(state *models.WorkflowState) []*schema.Message {
	m := state.Market
	prompt := fmt.Sprintf(`You are a market researcher for a prediction market. Gather external
information that bears on the market question below, then submit a report.

Market question: %s
Description: %s
Outcomes: %s

Use the %s tool to run deep external research on the question. When the
research is complete, call %s with a thorough report, the key learnings,
and the sources. Focus on recent, verifiable information that changes the
probability of each outcome.`,
		m.Question, m.Description, strings.Join(m.Outcomes, ", "),
		tools.DeepResearchTool, SubmitResearchTool)

	return []*schema.Message{schema.SystemMessage(prompt)}
}

func acceptResearch(state *models.WorkflowState, args json.RawMessage) error {
	var result models.ResearchResult
	if err := json.Unmarshal(args, &result); err != nil {
		return err
	}
	if result.Report == "" {
		return errors.New("report must not be empty")
	}
	state.Research = &result
	return nil
}
