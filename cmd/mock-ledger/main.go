package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/mobile-money/internal/ledger"
	"github.com/josh-kwaku/mobile-money/internal/logging"
)

func main() {
	logging.Init("mock-ledger", "info", os.Getenv("APP_ENV"))

	mem := ledger.NewMemory()
	if err := seed(mem, os.Getenv("LEDGER_SEED")); err != nil {
		slog.Error("invalid LEDGER_SEED", "error", err)
		os.Exit(1)
	}

	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	slog.Info("mock ledger started", "addr", addr)
	if err := http.ListenAndServe(addr, ledger.NewHTTPHandler(mem)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// seed reads "id=balance" pairs separated by commas.
func seed(mem *ledger.Memory, raw string) error {
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, amount, _ := strings.Cut(pair, "=")
		accountID, err := uuid.Parse(id)
		if err != nil {
			return err
		}
		balance, err := decimal.NewFromString(amount)
		if err != nil {
			return err
		}
		mem.Set(accountID, balance)
	}
	return nil
}
