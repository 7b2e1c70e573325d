package main

import (
	"time"

	"github.com/dmitrymomot/coachgate/pkg/appstore"
	"github.com/dmitrymomot/coachgate/pkg/coach"
	"github.com/dmitrymomot/coachgate/pkg/config"
	"github.com/dmitrymomot/coachgate/pkg/httpserver"
	"github.com/dmitrymomot/coachgate/pkg/jwt"
	"github.com/dmitrymomot/coachgate/pkg/pg"
	"github.com/dmitrymomot/coachgate/pkg/ratelimit"
	"github.com/dmitrymomot/coachgate/pkg/redis"
)

// Quota counter backends.
const (
	quotaRedis    = "redis"
	quotaPostgres = "postgres"
	quotaMemory   = "memory"
)

type appConfig struct {
	Env              string        `env:"APP_ENV" envDefault:"development"`
	Name             string        `env:"APP_NAME" envDefault:"coachgate"`
	QuotaStore       string        `env:"QUOTA_STORE" envDefault:"redis"`
	QuotaTimeZone    string        `env:"QUOTA_TIME_ZONE" envDefault:"UTC"`
	QuotaPruneEvery  time.Duration `env:"QUOTA_PRUNE_INTERVAL" envDefault:"1h"`
	ReadinessTimeout time.Duration `env:"READINESS_TIMEOUT" envDefault:"3s"`
}

type settings struct {
	app       appConfig
	pg        pg.Config
	redis     redis.Config
	http      httpserver.Config
	jwt       jwt.Config
	appstore  appstore.Config
	coach     coach.Config
	ratelimit ratelimit.Config
}

// loadSettings reads every config struct; the first failure wins.
// Redis settings are only required by the redis quota backend.
func loadSettings() (settings, error) {
	var s settings
	if err := config.Load(&s.app); err != nil {
		return s, err
	}
	loaders := []func() error{
		func() error { return config.Load(&s.pg) },
		func() error { return config.Load(&s.http) },
		func() error { return config.Load(&s.jwt) },
		func() error { return config.Load(&s.appstore) },
		func() error { return config.Load(&s.coach) },
		func() error { return config.Load(&s.ratelimit) },
	}
	if s.app.QuotaStore == quotaRedis {
		loaders = append(loaders, func() error { return config.Load(&s.redis) })
	}
	for _, load := range loaders {
		if err := load(); err != nil {
			return s, err
		}
	}
	return s, nil
}
