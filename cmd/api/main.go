package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"reservo.org/internal/config"
	"reservo.org/internal/httpapi"
	"reservo.org/internal/identity"
	"reservo.org/internal/obs"
	"reservo.org/internal/store"
	"reservo.org/internal/store/memstore"
	"reservo.org/internal/store/pg"
	"reservo.org/internal/store/rest"
	"reservo.org/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	recordStore, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer cleanup()

	codec, err := token.NewCodec(cfg.AuthSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Codec:              codec,
		Resolver:           identity.NewResolver(recordStore),
		Store:              recordStore,
		Version:            version,
		SuperadminPassword: cfg.SuperadminPassword,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting reservo-api %s on %s (store=%s)", version, srv.Addr, cfg.StoreBackend)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		st, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.BackendREST:
		client, err := rest.New(cfg.StoreBaseURL, cfg.StoreAPIKey,
			rest.WithHTTPClient(&http.Client{Timeout: cfg.StoreTimeout}))
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	default:
		st := memstore.New()
		st.EnforceUnique(store.Tenants, store.FieldBusinessCode)
		st.EnforceUnique(store.Volunteers, store.FieldVolunteerCode)
		return st, func() {}, nil
	}
}
