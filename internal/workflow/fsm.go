// Package workflow drives the reflective trading pipeline: fetch market,
// research, analysis, trade decision, each gated by a reflection verdict,
// with a human confirmation boundary before any order reaches the venue.
//
// The pipeline is an explicit state machine. Every node name is persisted
// in the run checkpoint, so a restarted process picks up routing exactly
// where the previous one parked.
package workflow

import "fmt"

// Node is one state of the run state machine.
type Node string

const (
	NodeFetchMarket Node = "fetch_market"

	NodeResearch        Node = "research"
	NodeResearchTools   Node = "research_tools"
	NodeReflectResearch Node = "reflect_research"

	NodeAnalysis        Node = "analysis"
	NodeAnalysisTools   Node = "analysis_tools"
	NodeReflectAnalysis Node = "reflect_analysis"

	NodeTrade        Node = "trade"
	NodeTradeTools   Node = "trade_tools"
	NodeReflectTrade Node = "reflect_trade"

	NodeSuspend Node = "suspend"
	NodeEnd     Node = "end"
)

// validTransitions is the full edge set of the machine. Tool nodes only
// ever return to their owning stage; gates fan out to advance, retry, or
// End; only ReflectTrade can reach the suspension boundary.
var validTransitions = map[Node][]Node{
	NodeFetchMarket: {NodeResearch, NodeEnd},

	NodeResearch:        {NodeResearch, NodeResearchTools, NodeReflectResearch, NodeEnd},
	NodeResearchTools:   {NodeResearch},
	NodeReflectResearch: {NodeResearch, NodeAnalysis, NodeEnd},

	NodeAnalysis:        {NodeAnalysis, NodeAnalysisTools, NodeReflectAnalysis, NodeEnd},
	NodeAnalysisTools:   {NodeAnalysis},
	NodeReflectAnalysis: {NodeAnalysis, NodeTrade, NodeEnd},

	NodeTrade:        {NodeTrade, NodeTradeTools, NodeReflectTrade, NodeEnd},
	NodeTradeTools:   {NodeTrade},
	NodeReflectTrade: {NodeTrade, NodeSuspend, NodeEnd},

	NodeSuspend: {NodeEnd},
	NodeEnd:     {},
}

// CanTransition reports whether from -> to is an edge of the machine.
func CanTransition(from, to Node) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition guards every controller move. A violation is a
// programming error, not a runtime condition, so it is returned as a
// plain error and fails the run.
func checkTransition(from, to Node) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("workflow: illegal transition %s -> %s", from, to)
	}
	return nil
}

// stageOf maps tool and gate nodes back to their owning stage, and stage
// nodes to themselves. Used when resetting per-stage counters.
func stageOf(n Node) Node {
	switch n {
	case NodeResearch, NodeResearchTools, NodeReflectResearch:
		return NodeResearch
	case NodeAnalysis, NodeAnalysisTools, NodeReflectAnalysis:
		return NodeAnalysis
	case NodeTrade, NodeTradeTools, NodeReflectTrade:
		return NodeTrade
	default:
		return n
	}
}
