package bootstrap

import (
	"log"

	"github.com/go-authgate/oauthd/internal/cache"
	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/core"
	"github.com/go-authgate/oauthd/internal/models"
)

// initializeClientCache builds the client-metadata cache backend. Returns
// the cache plus its closer.
func initializeClientCache(cfg *config.Config) (core.Cache[*models.Client], func() error) {
	switch cfg.CacheType {
	case config.CacheTypeRueidis:
		c, err := cache.NewRueidisAsideCache[*models.Client](
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"client:",
			cfg.CacheTTL,
		)
		if err != nil {
			log.Printf("[Cache] rueidis unavailable, falling back to memory: %v", err)
			m := cache.NewMemoryCache[*models.Client]()
			return m, m.Close
		}
		log.Printf("[Cache] client metadata cache: rueidis (%s)", cfg.RedisAddr)
		return c, c.Close
	default:
		log.Printf("[Cache] client metadata cache: memory")
		m := cache.NewMemoryCache[*models.Client]()
		return m, m.Close
	}
}
