package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/appleboy/graceful"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addExpirySweepJob adds the periodic removal of expired codes and tokens.
// Rows without an expiry are never swept.
func addExpirySweepJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	rec metrics.Recorder,
) {
	if cfg.SweepInterval <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runExpirySweep(db, rec)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func runExpirySweep(db *store.Store, rec metrics.Recorder) {
	start := time.Now()
	now := time.Now()

	codes, err := db.DeleteExpiredAuthCodes(now)
	if err != nil {
		rec.RecordDatabaseQueryError("sweep_auth_codes")
		log.Printf("Expiry sweep failed for auth codes: %v", err)
	}
	tokens, err := db.DeleteExpiredTokens(now)
	if err != nil {
		rec.RecordDatabaseQueryError("sweep_tokens")
		log.Printf("Expiry sweep failed for tokens: %v", err)
	}

	rec.RecordExpirySweep(codes, tokens, time.Since(start))
	if codes > 0 || tokens > 0 {
		log.Printf("Expiry sweep removed %d codes, %d tokens", codes, tokens)
	}
}

// addGaugeUpdateJob adds periodic metrics gauge update job
func addGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	rec metrics.Recorder,
) {
	if !cfg.MetricsEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		updateGaugeMetrics(db, rec)
		for {
			select {
			case <-ticker.C:
				updateGaugeMetrics(db, rec)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func updateGaugeMetrics(db *store.Store, rec metrics.Recorder) {
	for _, category := range []string{models.CategoryAccess, models.CategoryRefresh} {
		count, err := db.CountActiveTokensByCategory(category)
		if err != nil {
			rec.RecordDatabaseQueryError("count_" + category + "_tokens")
			continue
		}
		rec.SetActiveTokensCount(category, int(count))
	}

	clients, err := db.CountClients()
	if err != nil {
		rec.RecordDatabaseQueryError("count_clients")
		return
	}
	rec.SetRegisteredClientsCount(int(clients))
}

// addCacheCleanupJob adds cache cleanup on shutdown
func addCacheCleanupJob(m *graceful.Manager, closer func() error) {
	if closer == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := closer(); err != nil {
			log.Printf("Error closing client cache: %v", err)
		} else {
			log.Println("Client cache closed")
		}
		return nil
	})
}
