package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/pg"
	balancerepo "github.com/GlebRadaev/coursepay/internal/repo/balance-repo"
	"github.com/GlebRadaev/coursepay/internal/service/walletservice"
)

func main() {
	out := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	root := rootCmd(out, connect)
	if err := root.Execute(); err != nil {
		out.Error().Err(err).Msg("walletctl failed")
		os.Exit(1)
	}
}

// connect opens the ledger with the server's configuration. The returned func closes the pool.
func connect(ctx context.Context) (Ledger, func(), error) {
	cfg := config.Load()

	fee, err := decimal.NewFromString(cfg.Business.PlatformFeePercent)
	if err != nil {
		return nil, nil, fmt.Errorf("platform fee percent: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	ledger := walletservice.New(balancerepo.New(pg.New(pool)), pg.NewTXManager(pool), fee)
	return ledger, pool.Close, nil
}
