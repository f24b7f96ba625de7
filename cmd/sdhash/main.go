package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Anish-Chanda/sdhash/internal/config"
	"github.com/Anish-Chanda/sdhash/internal/logger"
)

const version = "sdhash 3.4 (go)"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sdhash: config load: %v\n", err)
		return 2
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp(cfg, os.Stdin, os.Stdout, os.Stderr)
	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "sdhash: %v\n", err)
		return 1
	}
	return 0
}
