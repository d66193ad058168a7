// Package main is the entry point for the issuedeck launcher CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/issuedeck/issuedeck/cmd/issuedeck/commands"
	"github.com/issuedeck/issuedeck/pkg/config"
	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/job"
	"github.com/issuedeck/issuedeck/pkg/logging"
	"github.com/issuedeck/issuedeck/pkg/query"
	"github.com/issuedeck/issuedeck/pkg/ratelimit"
	"github.com/issuedeck/issuedeck/pkg/store"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogFormat == "console",
		Output: stderr,
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	guard := ratelimit.NewGuard(redisClient, logging.NewLogger("ratelimit"))

	gwCfg := gateway.DefaultConfig(cfg.APIURL, cfg.Username, cfg.Password)
	gwCfg.Timeout = cfg.Timeout
	gw, err := gateway.New(gwCfg, guard)
	if err != nil {
		logger.Error().Err(err).Msg("Tracker client setup failed")
		return 1
	}

	st := store.New(redisClient)
	jobs := job.NewSupervisor(redisClient)

	app := &commands.App{
		Config:  cfg,
		Store:   st,
		Recency: store.NewRecency(redisClient),
		Gateway: gw,
		Jobs:    jobs,
		Query:   query.New(st, jobs, cfg.MaxAge),
	}

	cli := commands.New(app)
	cli.SetArgs(args)
	cli.SetOutput(os.Stdout, stderr)

	if err := cli.Execute(ctx); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}
