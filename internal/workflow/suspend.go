package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/clob"
	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/store"
)

// park checkpoints the run at the suspension boundary. With a Confirmer it
// collects the answer in-process and resumes through the same single-shot
// claim path an external resume would use; without one it returns a paused
// output and waits for Resume.
func (c *Controller) park(ctx context.Context, state *models.WorkflowState) (*models.RunOutput, error) {
	if err := c.checkpoints.Save(ctx, state, store.StatusPaused); err != nil {
		return nil, err
	}
	summary := PendingSummary(state)
	_ = c.checkpoints.AppendEvent(ctx, state.RunID, string(NodeSuspend), "paused", summary)
	log.Printf("[Workflow] run %s paused for confirmation:\n%s", state.RunID, summary)

	if c.confirmer == nil || state.ExternalConfirmation {
		return state.Output("paused"), nil
	}

	confirmed, err := c.confirmer.Confirm(ctx, summary)
	if err != nil {
		// The run stays parked; a later Resume can still carry the answer.
		return state.Output("paused"), fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return c.Resume(ctx, state.RunID, &confirmed)
}

// completeAfterConfirmation finishes a run whose resume claim succeeded.
// The claim already flipped the checkpoint out of paused, so this path
// runs at most once per pause no matter how many resumes raced.
func (c *Controller) completeAfterConfirmation(ctx context.Context, state *models.WorkflowState) (*models.RunOutput, error) {
	decision := state.Decision
	confirmed := *state.UserConfirmation

	if !confirmed {
		state.Terminal = models.TerminalCancelled
		state.EndReason = "trade cancelled by user"
		state.Append(schema.UserMessage("The trade was not confirmed. Do not execute it."))
		return c.endRun(ctx, state)
	}

	// Positions may have changed while the run was parked; a SELL must be
	// re-checked against what is held right now, not at decision time.
	if decision.Side == models.SideSell {
		if live, err := c.trader.Positions(ctx); err == nil {
			state.Positions = live
		} else {
			log.Printf("[Workflow] run %s: live position check failed, using snapshot: %v", state.RunID, err)
		}
		held := state.Position(decision.TokenID)
		if held.LessThan(decision.Size) {
			state.Terminal = models.TerminalCancelled
			state.EndReason = fmt.Sprintf("position changed while paused: want to sell %s, hold %s",
				decision.Size.String(), held.String())
			return c.endRun(ctx, state)
		}
	}

	if state.Debug {
		state.Order = &clob.OrderResponse{
			OrderID: "dry-run-" + state.RunID,
			Status:  "simulated",
		}
		state.Terminal = models.TerminalExecuted
		state.EndReason = "debug mode, order not sent"
		log.Printf("[Workflow] run %s: debug mode, would place %s", state.RunID, decision.String())
		return c.endRun(ctx, state)
	}

	order, err := c.trader.ExecuteOrder(ctx, clob.OrderRequest{
		TokenID:        decision.TokenID,
		Side:           string(decision.Side),
		Size:           decision.Size,
		IdempotencyKey: orderKey(state.RunID, decision),
	})
	if err != nil {
		state.Terminal = models.TerminalFailed
		state.EndReason = "order execution failed: " + err.Error()
		log.Printf("[Workflow] run %s: %s", state.RunID, state.EndReason)
		return c.endRun(ctx, state)
	}

	state.Order = order
	state.Terminal = models.TerminalExecuted
	log.Printf("[Workflow] run %s: order %s placed (%s)", state.RunID, order.OrderID, decision.String())
	return c.endRun(ctx, state)
}

// endRun moves a resumed run to End and closes it out.
func (c *Controller) endRun(ctx context.Context, state *models.WorkflowState) (*models.RunOutput, error) {
	state.Node = string(NodeEnd)
	_ = c.checkpoints.AppendEvent(ctx, state.RunID, string(NodeEnd), "terminal", string(state.Terminal))
	return c.finish(ctx, state)
}

// orderKey derives a stable idempotency key from the run and the exact
// decision content, so a replayed submission of the same decision cannot
// double-fill.
func orderKey(runID string, d *models.TradeDecision) string {
	body, _ := json.Marshal(d)
	sum := sha256.Sum256(body)
	return runID + ":" + hex.EncodeToString(sum[:])[:16]
}

// PendingSummary renders the parked trade for human review.
func PendingSummary(state *models.WorkflowState) string {
	d := state.Decision
	var b strings.Builder
	fmt.Fprintf(&b, "Pending trade for market %s\n", state.MarketID)
	if state.Market != nil {
		fmt.Fprintf(&b, "Question:   %s\n", state.Market.Question)
	}
	fmt.Fprintf(&b, "Side:       %s\n", d.Side)
	fmt.Fprintf(&b, "Outcome:    %s (token %s)\n", d.Outcome, d.TokenID)
	fmt.Fprintf(&b, "Size:       %s\n", d.Size.String())
	fmt.Fprintf(&b, "Confidence: %.2f\n", d.Confidence)
	fmt.Fprintf(&b, "Funds:      %s USDC\n", state.AvailableFunds.String())
	fmt.Fprintf(&b, "Reason:     %s\n", d.Reason)
	return b.String()
}
