package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/web3devz/polytrader/config"
	"github.com/web3devz/polytrader/internal/clob"
	"github.com/web3devz/polytrader/internal/gamma"
	"github.com/web3devz/polytrader/internal/llm"
	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/store"
	"github.com/web3devz/polytrader/internal/tools"
)

// MarketFetcher supplies normalized market documents.
type MarketFetcher interface {
	GetMarket(ctx context.Context, marketID string) (*gamma.Market, error)
}

// Trader is the venue surface the workflow needs: portfolio reads while
// deciding, order submission after confirmation.
type Trader interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Positions(ctx context.Context) (map[string]decimal.Decimal, error)
	ExecuteOrder(ctx context.Context, req clob.OrderRequest) (*clob.OrderResponse, error)
}

// CheckpointStore persists run state across the suspension boundary.
// ClaimResume must atomically flip a paused run to running so that
// concurrent resume attempts execute the trade at most once.
type CheckpointStore interface {
	Save(ctx context.Context, state *models.WorkflowState, status string) error
	Load(ctx context.Context, runID string) (*models.WorkflowState, string, error)
	ClaimResume(ctx context.Context, runID string) (*models.WorkflowState, error)
	AppendEvent(ctx context.Context, runID, node, eventType, detail string) error
}

// Confirmer collects the human yes/no on a pending trade. A nil Confirmer
// puts the controller in external-update mode: Run returns with the run
// parked and a later Resume call carries the answer in.
type Confirmer interface {
	Confirm(ctx context.Context, summary string) (bool, error)
}

// ErrMissingMarketID rejects run inputs with no market to work on.
var ErrMissingMarketID = errors.New("workflow: market_id is required")

// Controller owns a run end to end: it drives the state machine, invokes
// stages and gates, checkpoints after every transition, and parks at the
// suspension boundary. One Controller serves many runs.
type Controller struct {
	cfg         *config.Config
	decider     llm.Decider
	markets     MarketFetcher
	books       tools.BookSource
	trader      Trader
	researcher  tools.Researcher
	checkpoints CheckpointStore
	confirmer   Confirmer
}

// NewController wires the workflow collaborators. confirmer may be nil for
// external-update confirmation.
func NewController(cfg *config.Config, decider llm.Decider, markets MarketFetcher, books tools.BookSource, trader Trader, researcher tools.Researcher, checkpoints CheckpointStore, confirmer Confirmer) *Controller {
	return &Controller{
		cfg:         cfg,
		decider:     decider,
		markets:     markets,
		books:       books,
		trader:      trader,
		researcher:  researcher,
		checkpoints: checkpoints,
		confirmer:   confirmer,
	}
}

// Run starts a fresh workflow for the given input and drives it until it
// ends or parks at the suspension boundary.
func (c *Controller) Run(ctx context.Context, input models.RunInput) (*models.RunOutput, error) {
	if input.MarketID == "" {
		return nil, ErrMissingMarketID
	}

	state := &models.WorkflowState{
		RunID:                uuid.NewString(),
		MarketID:             input.MarketID,
		Debug:                input.Debug || c.cfg.Debug,
		ExternalConfirmation: input.ExternalConfirmation,
		Node:                 string(NodeFetchMarket),
		Positions:            input.Positions,
	}

	if input.AvailableFunds != nil {
		state.AvailableFunds = *input.AvailableFunds
	} else if bal, err := c.trader.Balance(ctx); err == nil {
		state.AvailableFunds = bal
	} else {
		log.Printf("[Workflow] balance lookup failed, using default funds: %v", err)
		state.AvailableFunds = decimal.NewFromFloat(c.cfg.DefaultFunds)
	}

	if state.Positions == nil {
		if pos, err := c.trader.Positions(ctx); err == nil {
			state.Positions = pos
		} else {
			log.Printf("[Workflow] position lookup failed, assuming none: %v", err)
		}
	}

	log.Printf("[Workflow] run %s started for market %s", state.RunID, state.MarketID)
	return c.drive(ctx, state)
}

// Resume continues a paused run. confirm overrides any confirmation signal
// already stored on the run; passing nil uses the stored one. The claim is
// single-shot: a second Resume for the same pause observes ErrNotPaused
// from the store and the order is never sent twice.
func (c *Controller) Resume(ctx context.Context, runID string, confirm *bool) (*models.RunOutput, error) {
	state, err := c.checkpoints.ClaimResume(ctx, runID)
	if err != nil {
		return nil, err
	}
	if confirm != nil {
		state.UserConfirmation = confirm
	}
	if state.UserConfirmation == nil {
		// No answer arrived; park the run again so a later resume can
		// carry one.
		if saveErr := c.checkpoints.Save(ctx, state, store.StatusPaused); saveErr != nil {
			return nil, saveErr
		}
		return nil, fmt.Errorf("workflow: run %s resumed without a confirmation signal", runID)
	}
	return c.completeAfterConfirmation(ctx, state)
}

// drive advances the machine node by node until End or Suspend.
func (c *Controller) drive(ctx context.Context, state *models.WorkflowState) (*models.RunOutput, error) {
	for {
		node := Node(state.Node)
		switch node {
		case NodeEnd:
			return c.finish(ctx, state)
		case NodeSuspend:
			return c.park(ctx, state)
		}

		next, err := c.step(ctx, node, state)
		if err != nil {
			return nil, err
		}
		if err := c.transition(ctx, state, node, next); err != nil {
			return nil, err
		}
	}
}

// step executes one node. Stage and gate panics are contained here and
// converted into an error message plus a retry of the same node, so a
// misbehaving model or tool burns loop budget instead of killing the run.
func (c *Controller) step(ctx context.Context, node Node, state *models.WorkflowState) (next Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Workflow] run %s: panic in %s: %v", state.RunID, node, r)
			owner := stageOf(node)
			switch owner {
			case NodeResearch, NodeAnalysis, NodeTrade:
				state.Append(models.ToolResultMessage("", string(node), fmt.Sprintf("internal error: %v", r), true))
				next, err = owner, nil
			default:
				state.EndReason = fmt.Sprintf("internal error in %s: %v", node, r)
				next, err = NodeEnd, nil
			}
		}
	}()

	switch node {
	case NodeFetchMarket:
		return c.fetchMarket(ctx, state)

	case NodeResearch:
		return c.runStage(ctx, c.researchSpec(state), state)
	case NodeResearchTools:
		return c.runTools(ctx, c.researchSpec(state), state)
	case NodeReflectResearch:
		return c.reflectResearch(ctx, state)

	case NodeAnalysis:
		return c.runStage(ctx, c.analysisSpec(state), state)
	case NodeAnalysisTools:
		return c.runTools(ctx, c.analysisSpec(state), state)
	case NodeReflectAnalysis:
		return c.reflectAnalysis(ctx, state)

	case NodeTrade:
		return c.runStage(ctx, c.tradeSpec(state), state)
	case NodeTradeTools:
		return c.runTools(ctx, c.tradeSpec(state), state)
	case NodeReflectTrade:
		return c.reflectTrade(ctx, state)
	}
	return NodeEnd, fmt.Errorf("workflow: unknown node %q", node)
}

// transition validates the move, maintains per-stage counters, and
// checkpoints. Counters reset when control enters a new stage family; the
// in-stage sub-loop (stage -> tools -> stage, or a stage retrying itself)
// keeps them running.
func (c *Controller) transition(ctx context.Context, state *models.WorkflowState, from, to Node) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}
	if stageOf(to) != stageOf(from) {
		state.LoopStep = 0
		if to != NodeEnd && to != NodeSuspend {
			state.StageRetries = 0
		}
	}
	state.Node = string(to)

	status := store.StatusRunning
	if to == NodeEnd {
		status = store.StatusDone
	}
	if err := c.checkpoints.Save(ctx, state, status); err != nil {
		return fmt.Errorf("checkpoint after %s: %w", from, err)
	}
	_ = c.checkpoints.AppendEvent(ctx, state.RunID, string(to), "transition", string(from)+" -> "+string(to))
	return nil
}

// fetchMarket loads the market document and derives the outcome tokens. A
// missing or empty market is a normal end of the run, not an error.
func (c *Controller) fetchMarket(ctx context.Context, state *models.WorkflowState) (Node, error) {
	market, err := c.markets.GetMarket(ctx, state.MarketID)
	if err != nil {
		log.Printf("[Workflow] run %s: market fetch failed: %v", state.RunID, err)
		state.EndReason = "no market data"
		return NodeEnd, nil
	}
	if market == nil || market.Question == "" {
		state.EndReason = "no market data"
		return NodeEnd, nil
	}

	state.Market = market
	for i, tokenID := range market.ClobTokenIDs {
		if i >= len(market.Outcomes) {
			break
		}
		state.Tokens = append(state.Tokens, models.Token{
			TokenID: tokenID,
			Outcome: gamma.NormalizeOutcome(market.Outcomes[i]),
		})
	}

	state.Append(schema.UserMessage(fmt.Sprintf("Fetched market data for market %s: %q", market.ID, market.Question)))
	return NodeResearch, nil
}

// finish closes out a run at End.
func (c *Controller) finish(ctx context.Context, state *models.WorkflowState) (*models.RunOutput, error) {
	status := "done"
	if state.Market == nil && state.EndReason == "no market data" {
		status = "no_data"
	}
	if err := c.checkpoints.Save(ctx, state, store.StatusDone); err != nil {
		return nil, err
	}
	log.Printf("[Workflow] run %s finished: status=%s reason=%q", state.RunID, status, state.EndReason)
	return state.Output(status), nil
}
