package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/branchscope/internal/config"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/projectstate"
	"github.com/cam3ron2/branchscope/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// newCache returns the configured response cache. An unreachable Redis falls
// back to the in-memory cache.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) store.Cache {
	if !strings.EqualFold(strings.TrimSpace(cfg.Backend), "redis") {
		return store.NewMemoryCache()
	}
	redisCache, err := newRedisCacheFromConfig(ctx, cfg)
	if err != nil {
		logger.Warn("failed to initialize redis cache; falling back to in-memory cache", zap.Error(err))
		return store.NewMemoryCache()
	}
	return redisCache
}

func newRedisCacheFromConfig(ctx context.Context, cfg config.CacheConfig) (*store.RedisCache, error) {
	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.RedisMasterSet,
			SentinelAddrs: cfg.RedisSentinelAddrs,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisCache(redisClient, store.RedisCacheConfig{
		Namespace: cfg.Namespace,
	}), nil
}

// openStateStore opens the configured project state backend.
func openStateStore(ctx context.Context, cfg config.StateConfig, logger *zap.Logger) (projectstate.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		sqlite, err := projectstate.OpenSQLite(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return sqlite, nil
	case "file":
		file, err := projectstate.NewFileStore(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return file, nil
	case "mongo":
		mongo, err := projectstate.OpenMongo(ctx, projectstate.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    10 * time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		return mongo, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// newGitHubHTTPClient authenticates as a GitHub App installation when one is
// configured, and otherwise with the first token the resolver finds. It returns
// the name of the credential source, empty when unauthenticated.
func newGitHubHTTPClient(ctx context.Context, cfg config.GitHubConfig, logger *zap.Logger) (*http.Client, string, error) {
	if cfg.App.Enabled() {
		client, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.App.AppID,
			InstallationID: cfg.App.InstallationID,
			PrivateKeyPath: cfg.App.PrivateKeyPath,
			Timeout:        cfg.RequestTimeout,
		})
		if err != nil {
			return nil, "", err
		}
		return client, "github_app", nil
	}

	token, source := tokenResolver(ctx, cfg, logger).Resolve(ctx)
	return githubapi.NewTokenHTTPClient(token, cfg.RequestTimeout, nil), source, nil
}

func tokenResolver(ctx context.Context, cfg config.GitHubConfig, logger *zap.Logger) githubapi.TokenResolver {
	var sources []githubapi.TokenSource
	if cfg.Secrets.Enabled {
		secrets, err := githubapi.NewSecretsManagerSource(ctx, cfg.Secrets.SecretID, cfg.Secrets.Region)
		if err != nil {
			logger.Warn("secrets manager token source unavailable", zap.Error(err))
		} else {
			sources = append(sources, secrets)
		}
	}
	sources = append(sources,
		githubapi.EnvSource{EnvFile: cfg.EnvFile},
		githubapi.FileSource{Path: cfg.TokenFile},
	)
	return githubapi.TokenResolver{Sources: sources, Logger: logger}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// checkStateStore reports whether the state backend answers. Backends without
// a ping are probed with a key listing.
func checkStateStore(ctx context.Context, state projectstate.Store) error {
	if state == nil {
		return fmt.Errorf("state store is not initialized")
	}
	if p, ok := state.(pinger); ok {
		return p.Ping(ctx)
	}
	_, err := state.Keys(ctx)
	return err
}
