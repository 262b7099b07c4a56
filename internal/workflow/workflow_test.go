package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/web3devz/polytrader/config"
	"github.com/web3devz/polytrader/internal/clob"
	"github.com/web3devz/polytrader/internal/gamma"
	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/research"
	"github.com/web3devz/polytrader/internal/store"
)

// scriptedDecider replays a fixed sequence of model responses. Every
// controller path that talks to the model consumes from the same queue,
// so a test script lists stage outputs and gate verdicts in call order.
type scriptedDecider struct {
	t     *testing.T
	queue []*schema.Message
	calls int
}

func (d *scriptedDecider) Decide(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	d.calls++
	if len(d.queue) == 0 {
		d.t.Fatalf("unexpected model call #%d", d.calls)
	}
	msg := d.queue[0]
	d.queue = d.queue[1:]
	return msg, nil
}

func toolCallMsg(name, args string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call-" + name,
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func verdictMsg(ok bool, reason string) *schema.Message {
	args := fmt.Sprintf(`{"reason":[%q],"is_satisfactory":%v,"improvement_instructions":""}`, reason, ok)
	return toolCallMsg(VerdictTool, args)
}

const (
	submitResearchArgs = `{"report":"Detailed findings on the question.","learnings":["key fact"],"visited_urls":["https://example.com"]}`
	submitAnalysisArgs = `{"analysis_summary":"Liquid market, tight spread.","confidence":0.8,"market_metrics":{"price_analysis":"stable","volume_analysis":"healthy","liquidity_analysis":"deep"}}`
)

func tradeArgsJSON(side, outcome, size string) string {
	return fmt.Sprintf(`{"side":%q,"outcome":%q,"market_id":"mkt-1","size":%s,"confidence":0.7,"reason":"edge identified"}`, side, outcome, size)
}

type fakeMarkets struct {
	market *gamma.Market
	err    error
}

func (f *fakeMarkets) GetMarket(ctx context.Context, marketID string) (*gamma.Market, error) {
	return f.market, f.err
}

type fakeBooks struct{}

func (fakeBooks) GetOrderbook(ctx context.Context, tokenID string) (*clob.Orderbook, error) {
	return &clob.Orderbook{TokenID: tokenID}, nil
}

func (fakeBooks) GetTrades(ctx context.Context, tokenID string, limit int) ([]clob.Trade, error) {
	return nil, nil
}

func (fakeBooks) GetPriceHistory(ctx context.Context, tokenID string, interval string) ([]clob.PricePoint, error) {
	return nil, nil
}

type fakeTrader struct {
	balance   decimal.Decimal
	positions map[string]decimal.Decimal
	executed  []clob.OrderRequest
	execErr   error
}

func (f *fakeTrader) Balance(ctx context.Context) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeTrader) Positions(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.positions, nil
}

func (f *fakeTrader) ExecuteOrder(ctx context.Context, req clob.OrderRequest) (*clob.OrderResponse, error) {
	f.executed = append(f.executed, req)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &clob.OrderResponse{OrderID: "ord-1", Status: "matched"}, nil
}

type fakeResearcher struct{}

func (fakeResearcher) Run(ctx context.Context, req research.Request) (*models.ResearchResult, error) {
	return &models.ResearchResult{Report: "external findings", Learnings: []string{"l1"}}, nil
}

type fakeConfirmer struct {
	answer bool
	asked  int
}

func (f *fakeConfirmer) Confirm(ctx context.Context, summary string) (bool, error) {
	f.asked++
	return f.answer, nil
}

func testMarket() *gamma.Market {
	return &gamma.Market{
		ID:           "mkt-1",
		Question:     "Will it happen?",
		Description:  "A test market.",
		Outcomes:     []string{"Yes", "No"},
		ClobTokenIDs: []string{"tok-yes", "tok-no"},
		Active:       true,
	}
}

type fixture struct {
	cfg       *config.Config
	decider   *scriptedDecider
	markets   *fakeMarkets
	trader    *fakeTrader
	repo      *store.CheckpointRepo
	confirmer *fakeConfirmer
}

func newFixture(t *testing.T, script []*schema.Message) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		MaxLoops:          6,
		ResearchLoopLimit: 3,
		ResearchBreadth:   2,
		ResearchDepth:     1,
		DefaultFunds:      10,
	}
	return &fixture{
		cfg:       cfg,
		decider:   &scriptedDecider{t: t, queue: script},
		markets:   &fakeMarkets{market: testMarket()},
		trader:    &fakeTrader{balance: decimal.NewFromInt(10)},
		repo:      store.NewCheckpointRepo(db),
		confirmer: &fakeConfirmer{answer: true},
	}
}

func (f *fixture) controller() *Controller {
	return NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, f.confirmer)
}

// happyScript drives research, analysis, and a BUY decision through all
// three gates.
func happyScript() []*schema.Message {
	return []*schema.Message{
		toolCallMsg("deep_research", `{"query":"will it happen"}`),
		toolCallMsg(SubmitResearchTool, submitResearchArgs),
		verdictMsg(true, "thorough"),
		toolCallMsg(SubmitAnalysisTool, submitAnalysisArgs),
		verdictMsg(true, "grounded"),
		toolCallMsg(SubmitTradeTool, tradeArgsJSON("BUY", "YES", "5")),
		verdictMsg(true, "prudent"),
	}
}

func TestRunRequiresMarketID(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.controller().Run(context.Background(), models.RunInput{}); err != ErrMissingMarketID {
		t.Fatalf("want ErrMissingMarketID, got %v", err)
	}
}

func TestRunEndsWhenMarketMissing(t *testing.T) {
	f := newFixture(t, nil)
	f.markets.err = fmt.Errorf("not found")

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != "no_data" {
		t.Errorf("status = %q, want no_data", out.Status)
	}
	if f.decider.calls != 0 {
		t.Errorf("model was called %d times for a missing market", f.decider.calls)
	}
}

func TestBuyExecutesAfterConfirmation(t *testing.T) {
	f := newFixture(t, happyScript())

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.Status != "done" {
		t.Fatalf("status = %q, want done", out.Status)
	}
	if out.Terminal != models.TerminalExecuted {
		t.Fatalf("terminal = %q, want executed", out.Terminal)
	}
	if f.confirmer.asked != 1 {
		t.Errorf("confirmer asked %d times, want 1", f.confirmer.asked)
	}
	if len(f.trader.executed) != 1 {
		t.Fatalf("trader executed %d orders, want 1", len(f.trader.executed))
	}

	req := f.trader.executed[0]
	if req.TokenID != "tok-yes" {
		t.Errorf("order token = %q, want tok-yes", req.TokenID)
	}
	if req.Side != "BUY" {
		t.Errorf("order side = %q, want BUY", req.Side)
	}
	if !req.Size.Equal(decimal.NewFromInt(5)) {
		t.Errorf("order size = %s, want 5", req.Size)
	}
	if req.IdempotencyKey == "" {
		t.Error("order submitted without an idempotency key")
	}
	if out.Order == nil || out.Order.OrderID != "ord-1" {
		t.Errorf("order response not surfaced: %+v", out.Order)
	}
	if out.Research == nil || out.Analysis == nil || out.Decision == nil {
		t.Error("run output missing stage results")
	}
}

func TestDeclineCancelsWithoutExecution(t *testing.T) {
	f := newFixture(t, happyScript())
	f.confirmer.answer = false

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Terminal != models.TerminalCancelled {
		t.Errorf("terminal = %q, want cancelled", out.Terminal)
	}
	if len(f.trader.executed) != 0 {
		t.Errorf("trader executed %d orders after decline", len(f.trader.executed))
	}
}

func TestResearchRetryCeilingEndsRun(t *testing.T) {
	var script []*schema.Message
	for i := 0; i < 6; i++ {
		script = append(script,
			toolCallMsg(SubmitResearchTool, submitResearchArgs),
			verdictMsg(false, "too vague"),
		)
	}
	f := newFixture(t, script)

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != "done" {
		t.Errorf("status = %q, want done", out.Status)
	}
	if out.Research != nil {
		t.Errorf("rejected research survived to output: %+v", out.Research)
	}
	if out.Analysis != nil || out.Decision != nil {
		t.Error("later stages ran after the retry ceiling")
	}
	if f.decider.calls != 12 {
		t.Errorf("model calls = %d, want 12", f.decider.calls)
	}
	if f.confirmer.asked != 0 {
		t.Error("suspension reached without a trade decision")
	}
}

func TestResearchLoopLimitEndsRun(t *testing.T) {
	// Three invocations that never submit burn the local bound.
	script := []*schema.Message{
		{Role: schema.Assistant, Content: "thinking"},
		{Role: schema.Assistant, Content: "still thinking"},
		{Role: schema.Assistant, Content: "hmm"},
	}
	f := newFixture(t, script)

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.EndReason != "research loop limit exceeded" {
		t.Errorf("end reason = %q", out.EndReason)
	}
	if out.Research != nil {
		t.Error("research result present after loop limit exit")
	}
}

func TestSellWithoutPositionLoopsBack(t *testing.T) {
	script := []*schema.Message{
		toolCallMsg(SubmitResearchTool, submitResearchArgs),
		verdictMsg(true, "thorough"),
		toolCallMsg(SubmitAnalysisTool, submitAnalysisArgs),
		verdictMsg(true, "grounded"),
		toolCallMsg(SubmitTradeTool, tradeArgsJSON("SELL", "NO", "2")),
		// Deterministic validation rejects the SELL; second attempt.
		toolCallMsg(SubmitTradeTool, tradeArgsJSON("NO_TRADE", "", "0")),
		verdictMsg(true, "sensible"),
	}
	f := newFixture(t, script)

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != "done" {
		t.Errorf("status = %q, want done", out.Status)
	}
	if out.EndReason != "no trade" {
		t.Errorf("end reason = %q, want no trade", out.EndReason)
	}
	if f.confirmer.asked != 0 {
		t.Error("invalid SELL reached the confirmation boundary")
	}
	if len(f.trader.executed) != 0 {
		t.Error("order executed for a rejected SELL")
	}
	if out.Decision == nil || out.Decision.Side != models.SideNoTrade {
		t.Errorf("final decision = %+v, want NO_TRADE", out.Decision)
	}
}

func TestExternalResumeExecutesAtMostOnce(t *testing.T) {
	f := newFixture(t, happyScript())

	ctrl := NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, nil)
	out, err := ctrl.Run(context.Background(), models.RunInput{MarketID: "mkt-1", ExternalConfirmation: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != "paused" {
		t.Fatalf("status = %q, want paused", out.Status)
	}
	if len(f.trader.executed) != 0 {
		t.Fatal("order executed before confirmation")
	}

	yes := true
	resumed, err := ctrl.Resume(context.Background(), out.RunID, &yes)
	if err != nil {
		t.Fatalf("first resume: %v", err)
	}
	if resumed.Terminal != models.TerminalExecuted {
		t.Fatalf("terminal = %q, want executed", resumed.Terminal)
	}

	if _, err := ctrl.Resume(context.Background(), out.RunID, &yes); err != store.ErrNotPaused {
		t.Fatalf("second resume error = %v, want ErrNotPaused", err)
	}
	if len(f.trader.executed) != 1 {
		t.Fatalf("trader executed %d orders across two resumes, want 1", len(f.trader.executed))
	}
}

func TestConfirmationWrittenExternallyConverges(t *testing.T) {
	// A separate channel answers the pause by writing into the
	// checkpoint; a resume with no explicit answer must pick it up and
	// behave exactly like a resume that carried the answer itself.
	f := newFixture(t, happyScript())
	ctrl := NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, nil)

	out, err := ctrl.Run(context.Background(), models.RunInput{MarketID: "mkt-1", ExternalConfirmation: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != "paused" {
		t.Fatalf("status = %q, want paused", out.Status)
	}

	if err := f.repo.SetConfirmation(context.Background(), out.RunID, true); err != nil {
		t.Fatalf("set confirmation: %v", err)
	}

	resumed, err := ctrl.Resume(context.Background(), out.RunID, nil)
	if err != nil {
		t.Fatalf("resume with stored answer: %v", err)
	}
	if resumed.Terminal != models.TerminalExecuted {
		t.Fatalf("terminal = %q, want executed", resumed.Terminal)
	}
	if len(f.trader.executed) != 1 {
		t.Fatalf("trader executed %d orders, want 1", len(f.trader.executed))
	}
}

func TestResumeWithoutAnswerStaysParked(t *testing.T) {
	f := newFixture(t, happyScript())
	ctrl := NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, nil)

	out, err := ctrl.Run(context.Background(), models.RunInput{MarketID: "mkt-1", ExternalConfirmation: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := ctrl.Resume(context.Background(), out.RunID, nil); err == nil {
		t.Fatal("resume without an answer should fail")
	}

	// The run must be parked again and still answerable.
	yes := true
	resumed, err := ctrl.Resume(context.Background(), out.RunID, &yes)
	if err != nil {
		t.Fatalf("resume after re-park: %v", err)
	}
	if resumed.Terminal != models.TerminalExecuted {
		t.Fatalf("terminal = %q, want executed", resumed.Terminal)
	}
}

func TestResumeSurvivesProcessRestart(t *testing.T) {
	f := newFixture(t, happyScript())
	ctrl := NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, nil)

	out, err := ctrl.Run(context.Background(), models.RunInput{MarketID: "mkt-1", ExternalConfirmation: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// A fresh controller over the same store stands in for a restarted
	// process.
	fresh := NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, nil)
	yes := true
	resumed, err := fresh.Resume(context.Background(), out.RunID, &yes)
	if err != nil {
		t.Fatalf("resume after restart: %v", err)
	}
	if resumed.Terminal != models.TerminalExecuted {
		t.Fatalf("terminal = %q, want executed", resumed.Terminal)
	}
	if resumed.Decision == nil || !resumed.Decision.Size.Equal(decimal.NewFromInt(5)) {
		t.Errorf("decision lost across restart: %+v", resumed.Decision)
	}
}

func TestSellRevalidatedAgainstLivePositions(t *testing.T) {
	script := []*schema.Message{
		toolCallMsg(SubmitResearchTool, submitResearchArgs),
		verdictMsg(true, "thorough"),
		toolCallMsg(SubmitAnalysisTool, submitAnalysisArgs),
		verdictMsg(true, "grounded"),
		toolCallMsg(SubmitTradeTool, tradeArgsJSON("SELL", "YES", "3")),
		verdictMsg(true, "prudent"),
	}
	f := newFixture(t, script)
	f.trader.positions = map[string]decimal.Decimal{"tok-yes": decimal.NewFromInt(4)}

	ctrl := NewController(f.cfg, f.decider, f.markets, fakeBooks{}, f.trader, fakeResearcher{}, f.repo, nil)
	out, err := ctrl.Run(context.Background(), models.RunInput{MarketID: "mkt-1", ExternalConfirmation: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Status != "paused" {
		t.Fatalf("status = %q, want paused", out.Status)
	}

	// The position is sold off elsewhere while the run is parked.
	f.trader.positions = map[string]decimal.Decimal{"tok-yes": decimal.NewFromInt(1)}

	yes := true
	resumed, err := ctrl.Resume(context.Background(), out.RunID, &yes)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Terminal != models.TerminalCancelled {
		t.Fatalf("terminal = %q, want cancelled", resumed.Terminal)
	}
	if len(f.trader.executed) != 0 {
		t.Error("order executed despite insufficient live position")
	}
}

func TestDebugModeSimulatesOrder(t *testing.T) {
	f := newFixture(t, happyScript())

	out, err := f.controller().Run(context.Background(), models.RunInput{MarketID: "mkt-1", Debug: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Terminal != models.TerminalExecuted {
		t.Fatalf("terminal = %q, want executed", out.Terminal)
	}
	if len(f.trader.executed) != 0 {
		t.Error("debug run sent a real order")
	}
	if out.Order == nil || out.Order.Status != "simulated" {
		t.Errorf("debug order = %+v, want simulated", out.Order)
	}
}
