// Command ledger runs the participation-ledger HTTP service: event/claim
// management, operator auth, the audit hash-chain, PoP proof issuance, and
// the master-only disclosure/search surface, wired together the way
// kernel/cmd/kernel/main.go wires its own AppContext.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/config"
	"github.com/ILLUVRSE/ledger/internal/disclosure"
	"github.com/ILLUVRSE/ledger/internal/dispatch"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/kv"
	"github.com/ILLUVRSE/ledger/internal/pop"
	"github.com/ILLUVRSE/ledger/internal/receipts"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	var store kv.Store
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = kv.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(ctx); err != nil {
			cancel()
			log.Fatalf("ping postgres: %v", err)
		}
		cancel()
		store = kv.NewPostgresStore(db)
		log.Println("connected to postgres")
	} else {
		store = kv.NewMemoryStore()
		log.Println("no DATABASE_URL configured; using in-memory store (dev only)")
	}

	fanout := buildFanout(cfg)
	mode := sinks.ParseMode(cfg.AuditImmutableMode)
	chain := auditchain.New(store, fanout, mode)
	if mode == sinks.ModeRequired && !chain.PrimarySinkConfigured() {
		log.Println("warning: AUDIT_IMMUTABLE_MODE=required but no primary sink is configured; mutating requests will fail closed")
	}

	registry := identity.NewRegistry(store, cfg.AdminPassword, cfg.AdminDemoPassword)
	users := identity.NewUsers(store)
	sessions := identity.NewSessionSigner(cfg.AdminSessionSecret, time.Duration(cfg.SessionTTLMinutes)*time.Minute)

	events := claims.New(store)
	codes := receipts.NewCodeReservation(store, cfg.ConfirmationScanLimit)
	receiptStore := receipts.NewStore(store)

	signer := pop.NewSigner(cfg.PopSignerSecretKeyB64, cfg.PopSignerPubkeyB58)
	popService := pop.NewService(store, chain, events, signer)

	builder := disclosure.NewBuilder(registry, events, chain)
	cache := disclosure.NewCache(builder, time.Duration(cfg.SearchCacheTTLSeconds)*time.Second)
	var sqlIndex *disclosure.SQLIndex
	if cfg.SearchIndexDatabaseURL != "" {
		idxDB, err := kv.Open(cfg.SearchIndexDatabaseURL)
		if err != nil {
			log.Fatalf("open search index database: %v", err)
		}
		sqlIndex = disclosure.NewSQLIndex(idxDB)
		if err := sqlIndex.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("ensure disclosure index schema: %v", err)
		}
		log.Println("search index backed by SEARCH_INDEX_DATABASE_URL")
	} else {
		log.Println("SEARCH_INDEX_DATABASE_URL not configured; search falls back to the in-process cache")
	}
	engine := disclosure.NewEngine(chain, builder, cache, sqlIndex)

	var objectStore sinks.ObjectStore
	if fanout != nil {
		objectStore = fanout.ObjectStore
	}

	deps := &dispatch.Deps{
		Config:      cfg,
		Registry:    registry,
		Users:       users,
		Sessions:    sessions,
		Events:      events,
		Codes:       codes,
		Receipts:    receiptStore,
		Chain:       chain,
		Pop:         popService,
		Signer:      signer,
		Disclosure:  engine,
		ObjectStore: objectStore,
		Source:      fanoutSource(fanout),
	}

	router := dispatch.NewRouter(deps)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting ledger server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	if db != nil {
		_ = db.Close()
	}
	log.Println("server stopped")
}

// buildFanout wires every configured immutable sink into a Fanout: an S3
// object store and/or HTTP ingest as primary candidates, Redis as the
// optional best-effort KV index, and Kafka as the optional non-authoritative
// relay. Returns nil if mode is off and neither an S3 bucket nor an ingest
// URL is configured, even when Redis or Kafka settings are present.
func buildFanout(cfg *config.Config) *sinks.Fanout {
	mode := sinks.ParseMode(cfg.AuditImmutableMode)
	if mode == sinks.ModeOff && cfg.S3Bucket == "" && cfg.AuditIngestURL == "" {
		return nil
	}

	f := &sinks.Fanout{Source: "ledger"}

	if cfg.S3Bucket != "" {
		store, err := sinks.NewS3Store(context.Background(), cfg.S3Bucket)
		if err != nil {
			log.Fatalf("initialize s3 object store: %v", err)
		}
		f.ObjectStore = store
		log.Printf("s3 object store configured (bucket=%s)", cfg.S3Bucket)
	}

	if cfg.AuditIngestURL != "" {
		f.Ingest = sinks.NewHTTPIngest(cfg.AuditIngestURL, cfg.AuditIngestToken, cfg.AuditIngestTimeoutMs)
		log.Printf("http immutable ingest configured (url=%s)", cfg.AuditIngestURL)
	}

	if cfg.KVIndexRedisAddr != "" {
		f.KVIndex = sinks.NewRedisKVIndex(cfg.KVIndexRedisAddr)
		log.Printf("redis kv index configured (addr=%s)", cfg.KVIndexRedisAddr)
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		relay, err := sinks.NewKafkaRelay(sinks.KafkaRelayConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Printf("warning: kafka relay not started: %v", err)
		} else {
			f.Relay = relay
			log.Printf("kafka relay configured (brokers=%v topic=%s)", cfg.KafkaBrokers, cfg.KafkaTopic)
		}
	}

	return f
}

func fanoutSource(f *sinks.Fanout) string {
	if f == nil {
		return "ledger"
	}
	return f.Source
}
