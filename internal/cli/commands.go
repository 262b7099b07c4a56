package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/web3devz/polytrader/config"
	"github.com/web3devz/polytrader/internal/clob"
	"github.com/web3devz/polytrader/internal/gamma"
	"github.com/web3devz/polytrader/internal/llm"
	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/research"
	"github.com/web3devz/polytrader/internal/store"
	"github.com/web3devz/polytrader/internal/workflow"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "polytrader",
		Short: "Polytrader - reflective prediction-market trading agent",
		Long: `Polytrader researches a prediction market, analyzes its quantitative
condition, and proposes a trade. Every capital-risking decision pauses the
run for human confirmation before any order is sent.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newResumeCmd(cfg))
	rootCmd.AddCommand(newConfirmCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Dry-run mode: decide but never send orders")

	return rootCmd
}

// newRunCmd creates the run command
func newRunCmd(cfg *config.Config) *cobra.Command {
	var (
		external bool
		funds    float64
	)

	cmd := &cobra.Command{
		Use:   "run [MARKET_ID]",
		Short: "Run the trading workflow for a market",
		Long: `Run the full research, analysis, and trade-decision workflow for a
Gamma market. Example: polytrader run 253591 --funds 25`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			marketID := ""
			if len(args) == 1 {
				marketID = args[0]
			} else {
				var err error
				if marketID, err = PromptForMarketID(); err != nil {
					return err
				}
			}

			ctrl, _, err := buildController(cmd.Context(), cfg, !external)
			if err != nil {
				return err
			}

			input := models.RunInput{
				MarketID:             marketID,
				Debug:                cfg.Debug,
				ExternalConfirmation: external,
			}
			if cmd.Flags().Changed("funds") {
				amount := decimal.NewFromFloat(funds)
				input.AvailableFunds = &amount
			}

			out, err := ctrl.Run(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Print(RenderOutput(out))
			if out.Status == "paused" {
				fmt.Printf("Run is paused. Confirm with: polytrader resume %s --confirm\n", out.RunID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&external, "external", false, "Park instead of prompting; confirm later via resume")
	cmd.Flags().Float64Var(&funds, "funds", 0, "Available funds in USDC (wallet balance if not provided)")

	return cmd
}

// newResumeCmd creates the resume command
func newResumeCmd(cfg *config.Config) *cobra.Command {
	var (
		confirm bool
		reject  bool
	)

	cmd := &cobra.Command{
		Use:   "resume [RUN_ID]",
		Short: "Resume a paused run with a confirmation answer",
		Long: `Resume a run parked at the confirmation boundary. Pass --confirm to
execute the pending trade or --reject to cancel it; with neither, the
pending trade is shown and asked about interactively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if confirm && reject {
				return errors.New("--confirm and --reject are mutually exclusive")
			}
			runID := args[0]

			ctrl, repo, err := buildController(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}

			var answer *bool
			switch {
			case confirm:
				yes := true
				answer = &yes
			case reject:
				no := false
				answer = &no
			default:
				state, status, err := repo.Load(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if status != store.StatusPaused {
					return fmt.Errorf("run %s is %s, not paused", runID, status)
				}
				// A confirmation may already have been written into the
				// checkpoint by a separate channel; consume it as-is.
				if state.UserConfirmation == nil {
					got, err := SurveyConfirmer{}.Confirm(cmd.Context(), workflow.PendingSummary(state))
					if err != nil {
						return err
					}
					answer = &got
				}
			}

			out, err := ctrl.Resume(cmd.Context(), runID, answer)
			if err != nil {
				return err
			}
			fmt.Print(RenderOutput(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Execute the pending trade")
	cmd.Flags().BoolVar(&reject, "reject", false, "Cancel the pending trade")

	return cmd
}

// newConfirmCmd creates the confirm command
func newConfirmCmd(cfg *config.Config) *cobra.Command {
	var reject bool

	cmd := &cobra.Command{
		Use:   "confirm [RUN_ID]",
		Short: "Record a confirmation answer on a paused run without resuming it",
		Long: `Write the confirmation answer into a paused run's checkpoint. The run
stays parked; a later 'polytrader resume RUN_ID' picks the answer up and
continues. Useful when the answer comes from a channel other than the
process that will resume the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			db, err := store.Open(filepath.Join(cfg.DataDir, "runs.db"))
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer db.Close()

			repo := store.NewCheckpointRepo(db)
			if err := repo.SetConfirmation(cmd.Context(), runID, !reject); err != nil {
				return err
			}
			fmt.Printf("Recorded answer for run %s. Continue with: polytrader resume %s\n", runID, runID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reject, "reject", false, "Record a rejection instead of a confirmation")

	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("polytrader v0.1.0")
		},
	}
}

// buildController wires the production collaborators behind the workflow.
func buildController(ctx context.Context, cfg *config.Config, interactive bool) (*workflow.Controller, *store.CheckpointRepo, error) {
	decider, err := llm.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init model client: %w", err)
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "runs.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}
	repo := store.NewCheckpointRepo(db)

	clobClient := clob.NewClient(cfg.ClobHost, cfg.ClobAPIKey)

	var confirmer workflow.Confirmer
	if interactive {
		confirmer = SurveyConfirmer{}
	}

	ctrl := workflow.NewController(
		cfg,
		decider,
		gamma.NewClient(cfg.GammaHost),
		clobClient,
		clobClient,
		research.NewClient(cfg.ResearchHost),
		repo,
		confirmer,
	)
	return ctrl, repo, nil
}
