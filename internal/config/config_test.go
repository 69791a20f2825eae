package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DRIVER", "MIGRATIONS", "CACHE_DRIVER", "CACHE_LIST_TTL", "KAFKA_BROKERS", "JWT_EXPIRY_HOURS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, MigrationsAuto, cfg.App.Migrations)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ListTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.StatsTTL)
	assert.Equal(t, 10000, cfg.Cache.MemoryCapacity)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpiry)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MIGRATIONS", "SQL")
	t.Setenv("CACHE_LIST_TTL", "90s")
	t.Setenv("CACHE_STATS_TTL", "not-a-duration")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, MigrationsSQL, cfg.App.Migrations)
	assert.Equal(t, 90*time.Second, cfg.Cache.ListTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.StatsTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Brokers)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 3, cfg.Cache.RedisDB)
}

func TestDatabaseConfig_Strings(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "cat", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=cat sslmode=disable", d.DSN())
	assert.Equal(t, "postgres://u:p@db:5433/cat?sslmode=disable", d.URL())
}
