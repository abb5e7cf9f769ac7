// Command recalculate replays the match ledger and rebuilds every stored
// rating. With -check it only reports drift and exits non-zero when the
// stored ratings disagree with the ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rallylog/backend/internal/config"
	"github.com/rallylog/backend/internal/database"
	"github.com/rallylog/backend/internal/ratings"
	"github.com/rallylog/backend/internal/redis"
	"github.com/rallylog/backend/internal/store"
)

func main() {
	checkOnly := flag.Bool("check", false, "only report drift, do not write")
	noLock := flag.Bool("no-lock", false, "skip the Redis lock (single instance deployments)")
	flag.Parse()

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var locker ratings.Locker
	if !*noLock && !*checkOnly {
		rdb, err := redis.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		locker = redis.NewLocker(rdb)
	}

	svc := ratings.NewService(store.NewPostgresStore(db), locker, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *checkOnly {
		report, err := svc.CheckDrift(ctx)
		if err != nil {
			log.Fatalf("Drift check failed: %v", err)
		}
		enc.Encode(report)
		if !report.Consistent() {
			os.Exit(2)
		}
		return
	}

	res, err := svc.RecalculateAll(ctx)
	if err != nil {
		log.Fatalf("Recalculation failed: %v", err)
	}
	enc.Encode(res)
}
