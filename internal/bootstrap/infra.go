package bootstrap

import (
	"context"
	"fmt"
	"time"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NewRedisClient parses url, falling back to treating it as a bare address.
func NewRedisClient(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	return redis.NewClient(opt)
}

func pingRedis(rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// NewFeed picks the change feed behind live subscriptions. A redis feed lets
// several server instances see each other's writes.
func NewFeed(cfg config.StoreConfig, rdb *redis.Client, log logger.ILogger) (docstore.Feed, error) {
	switch cfg.Feed {
	case "", "local":
		return docstore.NewLocalFeed(logger.NewWatermillAdapter(log)), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("docstore feed %q needs redis", cfg.Feed)
		}
		return docstore.NewRedisFeed(rdb), nil
	default:
		return nil, fmt.Errorf("unknown docstore feed %q", cfg.Feed)
	}
}

// NewStore builds the remote content store named by DOCSTORE_DRIVER.
func NewStore(cfg config.StoreConfig, db *gorm.DB, rdb *redis.Client, feed docstore.Feed) (docstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		return docstore.NewMemoryStore(feed), nil
	case "", "gorm":
		if db == nil {
			return nil, fmt.Errorf("docstore driver %q needs a database", cfg.Driver)
		}
		return docstore.NewGormStore(db, feed), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("docstore driver %q needs redis", cfg.Driver)
		}
		return docstore.NewRedisStore(rdb, feed), nil
	default:
		return nil, fmt.Errorf("unknown docstore driver %q", cfg.Driver)
	}
}

// NewGenerator calls the first-party proxy when one is configured and
// Gemini directly with the server key otherwise.
func NewGenerator(cfg config.Config) chatbot.Generator {
	opts := []chatbot.Option{
		chatbot.WithMaxAttempts(cfg.Ai.MaxAttempts),
		chatbot.WithInitialBackoff(cfg.Ai.InitialBackoff),
	}
	if cfg.Ai.CompletionEndpoint != "" {
		return chatbot.NewClient(cfg.Ai.CompletionEndpoint, opts...)
	}
	opts = append(opts, chatbot.WithAPIKey(cfg.Keys.GoogleGemini))
	return chatbot.NewClient(chatbot.GenerateContentURL(cfg.Ai.GeminiBaseURL, cfg.Ai.GeminiModel), opts...)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Store.Driver == "redis" || cfg.Store.Feed == "redis"
}
