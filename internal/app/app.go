// Package app holds startup helpers shared by the API and worker
// binaries: schema migrations and the admin rate limit.
package app

import (
	"net/http"

	migrate "github.com/golang-migrate/migrate/v4"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RunMigrations applies pending schema migrations; an already
// up-to-date schema is not an error.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// AdminRateLimit throttles the queue admin endpoints. Rate uses the
// limiter format, e.g. "60-M" for sixty requests per minute per client.
func AdminRateLimit(rdb *redis.Client, rate string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "admin_rl"})
	if err != nil {
		return nil, err
	}
	mw := stdlibmw.NewMiddleware(limiter.New(store, parsed))
	return mw.Handler, nil
}
