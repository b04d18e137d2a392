package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"txwizard/application/flows"
	"txwizard/application/session"
	"txwizard/application/submission"
	"txwizard/domain/fee"
	"txwizard/domain/wizard"
	"txwizard/infrastructure/config"
	"txwizard/infrastructure/idempotency"
)

// demoRecipient passes the send-asset address pattern.
const demoRecipient = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

func demoCmd() *cobra.Command {
	var (
		asset   string
		amount  string
		tier    string
		flaky   bool
		latency time.Duration
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk a send-asset wizard through submission in process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asset == "" && len(engine.Assets) > 0 {
				asset = engine.Assets[0]
			}
			var outcome submission.Outcome
			if flaky {
				outcome = submission.FailFirst(1)
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), demoInput{
				asset:   asset,
				amount:  amount,
				tier:    tier,
				outcome: outcome,
				latency: latency,
			})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "asset to send (default: first configured asset)")
	cmd.Flags().StringVar(&amount, "amount", "100.00", "amount in USD")
	cmd.Flags().StringVar(&tier, "tier", "", "fee tier (default: first tier of the asset)")
	cmd.Flags().BoolVar(&flaky, "flaky", false, "fail the first attempt transiently and retry")
	cmd.Flags().DurationVar(&latency, "latency", 200*time.Millisecond, "simulated gateway latency")
	return cmd
}

type demoInput struct {
	asset   string
	amount  string
	tier    string
	outcome submission.Outcome
	latency time.Duration
}

func runDemo(ctx context.Context, out io.Writer, in demoInput) error {
	live := fee.NewLive(engine.Schedule)
	catalog, err := catalogFor(engine, live)
	if err != nil {
		return err
	}
	if in.tier == "" {
		if tiers := live.Tiers(in.asset); len(tiers) > 0 {
			in.tier = tiers[0]
		}
	}

	gateway := submission.NewIdempotentGateway(
		submission.NewSimulatedGateway(in.latency, in.outcome, logger),
		idempotency.NewMemoryLedger(),
		logger,
	)
	sessions := session.NewService(catalog, gateway, live, config.NewRates(engine.Rates).Lookup, logger)

	m, err := sessions.Start(flows.SendAsset)
	if err != nil {
		return err
	}
	printState(out, "started", m)

	steps := []map[string]string{
		{"asset": in.asset, "recipient": demoRecipient},
		{"sourceAmount": in.amount, "tier": in.tier},
	}
	for _, values := range steps {
		for name, value := range values {
			if err := m.SetField(name, value); err != nil {
				return err
			}
		}
		moved, err := m.Advance()
		if err != nil {
			return err
		}
		if !moved {
			printState(out, "rejected", m)
			return errors.New("demo input did not validate")
		}
		printState(out, "advanced", m)
	}
	printDerived(out, m.Derived())

	for {
		if _, err := m.ConfirmAndSubmit(ctx); err != nil {
			return err
		}
		printState(out, "submitted", m)

		st, err := m.Await(ctx)
		if err != nil {
			return err
		}
		printState(out, "resolved", m)
		if st.Phase == wizard.PhaseSucceeded {
			fmt.Fprintf(out, "reference %s (key %s)\n", st.Receipt.Reference, st.Receipt.IdempotencyKey)
			return nil
		}
		if st.Failure == nil || !st.Failure.Retryable {
			return fmt.Errorf("submission failed: %s", failureReason(st.Failure))
		}
		fmt.Fprintf(out, "retrying after %s\n", st.Failure.Reason)
	}
}

func printState(out io.Writer, label string, m *wizard.Machine) {
	st := m.Snapshot()
	fmt.Fprintf(out, "%-10s phase=%-10s step=%d(%s) attempts=%d version=%d\n",
		label, st.Phase, st.StepIndex, st.StepName, st.Attempts, st.Version)
	for field, msg := range st.Errors {
		fmt.Fprintf(out, "           %s: %s\n", field, msg)
	}
}

func printDerived(out io.Writer, d wizard.Derived) {
	if !d.Available {
		if d.Err != nil {
			fmt.Fprintf(out, "derived unavailable: %s\n", d.Err)
		}
		return
	}
	fmt.Fprintf(out, "send %s %s at %s = %s %s\n",
		d.SourceAmount, d.SourceUnit, d.Rate, d.TargetAmount, d.TargetUnit)
	if d.Fee != nil {
		fmt.Fprintf(out, "fee  %s %s (%s)\n", d.Fee.Amount, d.Fee.Unit, d.Fee.Tier)
	}
	fmt.Fprintf(out, "total %s %s\n", d.Total, d.TotalUnit)
}

func failureReason(f *wizard.Failure) string {
	if f == nil {
		return "unknown"
	}
	return f.Reason
}
