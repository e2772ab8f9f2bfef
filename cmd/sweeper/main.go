// Command sweeper runs the retention sweep daemon: it wires the encrypted
// record store, audit log, and retention engine, then executes scheduled
// archiving, compliance-gated deletions, and purges on a cron schedule.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodian/internal/audit"
	"custodian/internal/audit/outbox"
	auditmem "custodian/internal/audit/store/memory"
	auditpg "custodian/internal/audit/store/postgres"
	"custodian/internal/crypto"
	"custodian/internal/platform/config"
	"custodian/internal/platform/logger"
	"custodian/internal/platform/metrics"
	"custodian/internal/platform/postgres"
	"custodian/internal/platform/redis"
	"custodian/internal/retention"
	"custodian/internal/securestore"
	"custodian/pkg/domain"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keyring, err := crypto.NewKeyring(cfg.MasterPassphrase)
	if err != nil {
		log.Error("keyring initialization failed", "error", err)
		os.Exit(1)
	}

	policies, err := retention.NewPolicySet(retention.DefaultPolicies())
	if err != nil {
		log.Error("invalid retention policies", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Storage: postgres when configured, in-memory otherwise so the daemon
	// stays runnable in local development.
	var (
		records  securestore.RecordStore
		archives securestore.ArchiveStore
		backups  securestore.BackupStore
		tracking retention.TrackingStore
		consents retention.ConsentStore
		auditLog *audit.Log
		relay    *outbox.Relay
	)
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		records = securestore.NewPostgresRecordStore(db)
		archives = securestore.NewPostgresArchiveStore(db)
		backups = securestore.NewPostgresBackupStore(db)
		tracking = retention.NewPostgresTrackingStore(db)
		consents = retention.NewPostgresConsentStore(db)

		auditStore := auditpg.New(db)
		auditLog = audit.New(auditStore, audit.WithLogger(log))

		if len(cfg.Kafka.Brokers) > 0 {
			relay, err = outbox.New(auditStore, cfg.Kafka.Brokers, cfg.Kafka.Topic, outbox.WithLogger(log))
			if err != nil {
				log.Error("audit outbox relay init failed", "error", err)
				os.Exit(1)
			}
			defer relay.Close()
			go func() {
				if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("audit outbox relay stopped", "error", err)
				}
			}()
		}
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		records = securestore.NewInMemoryRecordStore()
		archives = securestore.NewInMemoryArchiveStore()
		backups = securestore.NewInMemoryBackupStore()
		tracking = retention.NewInMemoryTrackingStore()
		consents = retention.NewInMemoryConsentStore()
		auditLog = audit.New(auditmem.NewInMemoryStore(), audit.WithLogger(log))
	}

	var erasure retention.ErasureRegistry = retention.NewInMemoryErasureRegistry()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		erasure = retention.NewRedisErasureRegistry(redisClient)
	}

	store := securestore.New(records, archives, backups, keyring, policies, auditLog, m,
		securestore.WithLogger(log))
	// CCPA and HIPAA carry no deletion preconditions beyond the policy
	// schedule itself; their handlers exist so the compliance flags on the
	// tracking record name every evaluated regime.
	gate := retention.NewComplianceGate(
		retention.NewGDPRHandler(consents, erasure),
		retention.NewDefaultAllowHandler(domain.RegulationCCPA),
		retention.NewDefaultAllowHandler(domain.RegulationHIPAA),
	)
	engine := retention.NewEngine(tracking, policies, gate, store, erasure, m,
		retention.WithLogger(log))

	sweeper := retention.NewSweeper(engine, cfg.Sweep, m, log)
	if err := sweeper.Start(ctx); err != nil {
		log.Error("sweeper start failed", "error", err)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", nil); err != nil && err != http.ErrServerClosed {
			log.Error("metrics endpoint failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down, waiting for in-flight sweep")
	sweeper.Stop()
}
