package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"accessgov.org/internal/audit"
	"accessgov.org/internal/directory"
	"accessgov.org/internal/httpapi"
	"accessgov.org/internal/obs"
	"accessgov.org/internal/scope"
	"accessgov.org/internal/store/memory"
	"accessgov.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, db, err := openStore(ctx)
	cancel()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	opts := []directory.Option{}
	if hours := envInt("ACCESSGOV_SESSION_HOURS", 0); hours > 0 {
		opts = append(opts, directory.WithSessionTTL(time.Duration(hours)*time.Hour))
	}
	svc := directory.NewService(store, opts...)
	engine := scope.NewEngine(store, time.Now)

	var recorder *audit.Recorder
	if buf := envInt("ACCESSGOV_AUDIT_BUFFER", 4096); buf > 0 {
		recorder = audit.NewRecorder(buf)
		interval := time.Duration(envInt("ACCESSGOV_AUDIT_INTERVAL_SEC", 30)) * time.Second
		go recorder.Run(context.Background(), svc, interval)
	}

	api := httpapi.New(svc, engine, recorder, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting accessgov-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	// Flush whatever the recorder still buffers before the store goes away.
	if recorder != nil {
		_ = recorder.Ingest(shutdownCtx, svc)
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// openStore prefers postgres when a DSN is configured and degrades to the
// in-memory store otherwise (development, tests, demos).
func openStore(ctx context.Context) (directory.Store, *sql.DB, error) {
	dsn := os.Getenv("ACCESSGOV_PG_DSN")
	if dsn == "" {
		log.Println("ACCESSGOV_PG_DSN not set, using in-memory store")
		return memory.NewStore(), nil, nil
	}
	store, err := pg.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	db := store.DB()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return store, db, nil
}

func listenAddr() string {
	if addr := os.Getenv("ACCESSGOV_LISTEN"); addr != "" {
		return addr
	}
	return ":8080"
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return n
}
