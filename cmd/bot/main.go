package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/loreleibot/lorelei/config"
	"github.com/loreleibot/lorelei/gateway"
	"github.com/loreleibot/lorelei/logger"
	"github.com/loreleibot/lorelei/server"
	"github.com/loreleibot/lorelei/state"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	store := state.NewStore()
	session := gateway.NewSession(gateway.Arguments{
		Token:      cfg.Token,
		GatewayURL: cfg.GatewayURL,
		Store:      store,
		Logger:     log,
		Notify: func(n gateway.Notification) {
			log.Debug("entity changed", "kind", n.Kind, "id", n.ID)
		},
	})
	if err := session.Open(ctx); err != nil {
		log.Error("failed to open gateway", "err", err)
		stop()
		return
	}

	go server.NewServer(session).StartServer(ctx, cfg.StatusAddr)

	<-ctx.Done()
	session.Close()
}
