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

	"github.com/joho/godotenv"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/catalog"
	"agentgrid.io/internal/httpapi"
	"agentgrid.io/internal/obs"
	"agentgrid.io/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		db    *sql.DB
		cat   catalog.Service
		store access.Store
	)
	if dsn := os.Getenv("AGENTGRID_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pgStore.DB()
		cat = pgStore
		store = pgStore
	} else {
		log.Println("AGENTGRID_PG_DSN not set, serving from in-memory stores")
		cat = catalog.NewInMemory()
		store = access.NewInMemory()
	}
	// The catalog is read-mostly; a small TTL cache keeps tier lookups off
	// the hot path for grant and assignment checks.
	cat = catalog.NewCached(cat, 1024, 30*time.Second)

	grants, err := access.NewGrants(store, cat)
	if err != nil {
		log.Fatalf("grants: %v", err)
	}
	requests, err := access.NewRequests(store, store, cat)
	if err != nil {
		log.Fatalf("requests: %v", err)
	}
	library, err := access.NewLibrary(store, store, cat)
	if err != nil {
		log.Fatalf("library: %v", err)
	}
	resolver, err := access.NewResolver(store, store, cat)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, cat, grants, requests, library, resolver)

	addr := os.Getenv("AGENTGRID_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting agentgrid-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
