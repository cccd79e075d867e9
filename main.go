package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"coinflip/cmd"
	"coinflip/database"

	log "github.com/sirupsen/logrus"
)

const migrateUsage = "usage: coinflip migrate up | down [steps] | status"

func main() {
	// sqlite and postgres local stores need their schema before the client starts
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := migrateLocalStore(os.Args[2:]); err != nil {
			log.WithError(err).Fatal("Local store migration failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("Stopping coin flip client")
	}()

	if err := cmd.Run(ctx); err != nil {
		log.WithError(err).Fatal("Coin flip client exited")
	}
}

// migrateLocalStore applies, rolls back or reports the local state schema
func migrateLocalStore(args []string) error {
	if len(args) == 0 {
		return errors.New(migrateUsage)
	}

	switch action := args[0]; action {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(args) > 1 {
			steps = args[1]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migrate action %q (%s)", action, migrateUsage)
	}
}
