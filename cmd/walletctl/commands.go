package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/service/walletservice"
)

//go:generate mockgen -source=commands.go -destination=mock_commands.go -package=main

type Ledger interface {
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	Audit(ctx context.Context, userID int64) (*walletservice.AuditReport, error)
	AuditAll(ctx context.Context) ([]int64, error)
	Unfreeze(ctx context.Context, userID int64) error
}

type connectFn func(ctx context.Context) (Ledger, func(), error)

var errMismatch = errors.New("ledger mismatch found")

func rootCmd(out zerolog.Logger, connect connectFn) *cobra.Command {
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Operator tools for instructor wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(auditCmd(out, connect))
	root.AddCommand(balanceCmd(out, connect))
	root.AddCommand(unfreezeCmd(out, connect))
	return root
}

// withLedger runs fn against a freshly connected ledger.
func withLedger(cmd *cobra.Command, connect connectFn, fn func(ctx context.Context, ledger Ledger) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ledger, closeFn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, ledger)
}

func auditCmd(out zerolog.Logger, connect connectFn) *cobra.Command {
	var userID int64
	var all bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Recompute balances from the ledger and freeze mismatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (userID > 0) {
				return errors.New("pass exactly one of --user or --all")
			}
			return withLedger(cmd, connect, func(ctx context.Context, ledger Ledger) error {
				if all {
					mismatched, err := ledger.AuditAll(ctx)
					if err != nil {
						return err
					}
					if len(mismatched) > 0 {
						out.Warn().Ints64("users", mismatched).Msg("ledger mismatch, balances frozen")
						return errMismatch
					}
					out.Info().Msg("all balances match their ledgers")
					return nil
				}

				report, err := ledger.Audit(ctx, userID)
				if err != nil && !errors.Is(err, walletservice.ErrLedgerMismatch) {
					return err
				}
				out.Info().
					Int64("user", report.UserID).
					Int64("stored_available", report.StoredAvailable).
					Int64("ledger_available", report.LedgerAvailable).
					Int64("stored_pending", report.StoredPending).
					Int64("ledger_pending", report.LedgerPending).
					Int64("entries", report.Entries).
					Bool("frozen", report.Frozen).
					Bool("consistent", report.Consistent).
					Msg("audit")
				if err != nil {
					return errMismatch
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "instructor id")
	cmd.Flags().BoolVar(&all, "all", false, "audit every balance")
	return cmd
}

func balanceCmd(out zerolog.Logger, connect connectFn) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an instructor's stored balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, connect, func(ctx context.Context, ledger Ledger) error {
				b, err := ledger.GetBalance(ctx, userID)
				if err != nil {
					return err
				}
				out.Info().
					Int64("user", b.UserID).
					Int64("available", b.AvailableCents).
					Int64("pending", b.PendingCents).
					Bool("frozen", b.Frozen).
					Str("frozen_reason", b.FrozenReason).
					Msg("balance")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "instructor id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func unfreezeCmd(out zerolog.Logger, connect connectFn) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "unfreeze",
		Short: "Lift a freeze once the ledger audits clean",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, connect, func(ctx context.Context, ledger Ledger) error {
				if err := ledger.Unfreeze(ctx, userID); err != nil {
					return fmt.Errorf("unfreeze user %d: %w", userID, err)
				}
				out.Info().Int64("user", userID).Msg("balance unfrozen")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "instructor id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
