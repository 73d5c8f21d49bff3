package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/david-fong/capswalk-sub001/internal/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
