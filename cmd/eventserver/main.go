// Command eventserver runs the ingestion core's HTTP event endpoint
// against a Postgres-backed store.
package main

import (
	"context"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"stacks-event-ingest/internal/eventconfig"
	"stacks-event-ingest/internal/eventserver"
	"stacks-event-ingest/internal/eventstore"
	"stacks-event-ingest/internal/ingest"
	"stacks-event-ingest/internal/queue"
)

func main() {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := eventconfig.Load()
	if err != nil {
		log.WithError(err).Fatal("config: invalid environment")
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("config: STACKS_EVENT_DATABASE_URL is required")
	}

	ctx := context.Background()
	store, err := eventstore.NewPgStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("store: connect failed")
	}
	defer store.Close(ctx)

	rawLogPath := os.Getenv("STACKS_EVENT_RAW_LOG_PATH")
	if rawLogPath == "" {
		rawLogPath = "events.tsv"
	}
	rawLog, err := eventstore.OpenFileRawEventLog(rawLogPath)
	if err != nil {
		log.WithError(err).Fatal("raw event log: open failed")
	}
	defer rawLog.Close()

	q := queue.New(64)
	defer q.Close()

	handlers := ingest.New(store, log)
	addr := cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
	srv := eventserver.New(addr, handlers, rawLog, q, log)

	log.WithField("mode", string(cfg.Mode)).WithField("chain_id", cfg.ChainID).Info("starting stacks event ingest")
	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("event server exited")
	}
}
