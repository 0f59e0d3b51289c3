package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"charger-monitor/reliability/internal/config"
	"charger-monitor/reliability/internal/store"
)

// seed_redis rebuilds the charger:{id}:state hashes from TimescaleDB, for a
// fresh or flushed redis in front of an existing database.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB and Redis...")
	db, err := store.NewTimescaleStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer db.Close()

	rdb, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	defer rdb.Close()
	fmt.Println("✓ Connected")

	ids := step1_live_states(ctx, db, rdb)
	step2_verify(ctx, rdb, ids)

	fmt.Println("\n✅ Redis seeded successfully")
}

func step1_live_states(ctx context.Context, db *store.TimescaleStore, rdb *store.RedisStore) []string {
	fmt.Println("\n── Step 1: Seeding live charger states ─────────")

	latest, err := db.LatestStatus(ctx)
	if err != nil {
		log.Fatalf("Reading latest status failed: %v", err)
	}

	ids := make([]string, 0, len(latest))
	for i := range latest {
		obs := &latest[i]
		if err := rdb.PipelineStateUpdate(ctx, obs); err != nil {
			log.Fatalf("Failed to seed %s: %v", obs.ChargerID, err)
		}
		ids = append(ids, obs.ChargerID)
		fmt.Printf("  ✓ %-20s → %s\n", obs.ChargerID, obs.State)
	}
	return ids
}

func step2_verify(ctx context.Context, rdb *store.RedisStore, ids []string) {
	fmt.Println("\n── Step 2: Verification ────────────────────────")

	states, err := rdb.LiveStates(ctx, ids)
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	if len(states) != len(ids) {
		log.Fatalf("Expected %d live states, found %d", len(ids), len(states))
	}
	fmt.Printf("  ✓ %d charger states found in Redis\n", len(states))
}
