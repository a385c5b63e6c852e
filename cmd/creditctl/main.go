// Command creditctl inspects and adjusts credit accounts in the configured
// store and mints bearer tokens for manual testing.
//
//	creditctl balance  -user alice
//	creditctl purchase -user alice -amount 20 -ref manual-2026-01
//	creditctl history  -user alice -limit 10
//	creditctl token    -user alice -ttl 24h
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"vidluxe/internal/bootstrap"
	"vidluxe/internal/credits"
	"vidluxe/internal/infra"
	"vidluxe/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "creditctl").Logger()

	if err := run(context.Background(), cfg, logger, os.Args[1:], os.Stdout); err != nil {
		exitWithError(err)
	}
}

func run(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: creditctl <balance|purchase|history|token> [flags]")
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		userFlag   string
		amountFlag int
		refFlag    string
		limitFlag  int
		ttlFlag    time.Duration
	)
	fs.StringVar(&userFlag, "user", "", "account (user) ID")
	fs.IntVar(&amountFlag, "amount", 0, "credits to add (purchase)")
	fs.StringVar(&refFlag, "ref", "", "payment reference; repeated refs are granted once (purchase)")
	fs.IntVar(&limitFlag, "limit", 20, "number of transactions to show (history)")
	fs.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime (token)")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		return errors.New("-user is required")
	}

	if cmd == "token" {
		token, err := middleware.SignToken(cfg.JWTSecret, userID, ttlFlag)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(out, token)
		return nil
	}

	if cfg.StoreBackend == infra.BackendMemory {
		logger.Warn().Msg("memory backend: changes are discarded on exit")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer stores.Close()

	ledger := credits.NewLedger(stores.Accounts, stores.Locker, credits.Config{
		FreeMonthlyLimit:    cfg.FreeMonthlyCredits,
		InviteReferrerBonus: cfg.InviteReferrerBonus,
		InviteInviteeBonus:  cfg.InviteInviteeBonus,
		InviteExpiry:        cfg.InviteExpiry,
		MonthlyInviteCap:    cfg.MonthlyInviteCap,
	}, logger)

	switch cmd {
	case "balance":
		avail, err := ledger.GetAvailable(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load balance: %w", err)
		}
		fmt.Fprintf(out, "user=%s total=%d paid=%d free=%d free_remaining=%d\n",
			userID, avail.Total, avail.Paid, avail.Free, avail.FreeRemaining)

	case "purchase":
		if strings.TrimSpace(refFlag) == "" {
			refFlag = fmt.Sprintf("creditctl-%d", time.Now().UnixNano())
		}
		res, err := ledger.Purchase(ctx, userID, amountFlag, "manual credit purchase", refFlag)
		if err != nil {
			return fmt.Errorf("failed to purchase: %w", err)
		}
		if !res.Success {
			return fmt.Errorf("purchase rejected: %s", res.Error)
		}
		fmt.Fprintf(out, "user=%s balance=%d transaction=%s\n", userID, res.NewBalance, res.TransactionID)

	case "history":
		txs, err := ledger.Transactions(ctx, userID, limitFlag)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		for _, tx := range txs {
			fmt.Fprintf(out, "%s\t%+d\t%s\t%s\n", tx.CreatedAt.UTC().Format(time.RFC3339), tx.Amount, tx.Kind, tx.Description)
		}

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
