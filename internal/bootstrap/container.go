package bootstrap

import (
	"context"
	"fmt"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/controller"
	"discussion-companion-be/internal/discussion"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/handler"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/internal/repository/unitofwork"
	"discussion-companion-be/internal/service"
	"discussion-companion-be/internal/websocket"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"
	"discussion-companion-be/pkg/events"
	pktNats "discussion-companion-be/pkg/nats"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const containerModule = "Bootstrap"

type Container struct {
	// Controllers
	AuthController       controller.IAuthController
	OAuthController      controller.IOAuthController
	UserController       controller.IUserController
	DiscussionController controller.IDiscussionController
	ChitChatController   controller.IChitChatController
	ProxyController      controller.IProxyController

	// Background Services (exposed for main.go to run); nil without NATS.
	ConsumerService service.IConsumerService

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c := &Container{Logger: sysLogger}

	// 2. Infrastructure
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		rdb = NewRedisClient(cfg.App.RedisURL)
		if err := pingRedis(rdb); err != nil {
			if needsRedis(cfg) {
				return nil, fmt.Errorf("redis: %w", err)
			}
			sysLogger.Warn(containerModule, "Redis unavailable, running single-node", map[string]interface{}{"error": err.Error()})
			_ = rdb.Close()
			rdb = nil
		} else {
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}

	feed, err := NewFeed(cfg.Store, rdb, sysLogger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { _ = feed.Close() })

	store, err := NewStore(cfg.Store, db, rdb, feed)
	if err != nil {
		return nil, err
	}
	if gs, ok := store.(*docstore.GormStore); ok {
		if err := gs.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate documents: %w", err)
		}
	}

	var publisher events.Publisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger.Zap())
	if err != nil {
		sysLogger.Warn(containerModule, "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
	} else {
		publisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	if natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger.Zap()); err != nil {
		sysLogger.Warn(containerModule, "Failed to connect to NATS Subscriber", map[string]interface{}{"error": err.Error()})
	} else {
		c.ConsumerService = service.NewConsumerService(natsSub, sysLogger)
		c.closers = append(c.closers, natsSub.Close)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)

	// 3. Services
	generator := NewGenerator(*cfg)
	authService := service.NewAuthService(uowFactory, cfg.Auth, publisher, sysLogger)
	oauthService := service.NewOAuthService(cfg.OAuth, authService, sysLogger)
	userService := service.NewUserService(uowFactory, publisher, sysLogger)

	machine := discussion.NewMachine(
		discussion.NewSynchronizer(store, generator, cfg.Store.TenantID, sysLogger),
		generator,
		sysLogger,
	)
	discussionService := service.NewDiscussionService(machine, wsHub, publisher, sysLogger)
	chitChatService := service.NewChitChatService(store, generator, cfg.Store.TenantID, publisher, sysLogger)

	wsHub.OnInbound(func(userID string, msg websocket.Inbound) {
		if msg.Type == "editing" {
			discussionService.SetEditingFromClient(userID, msg.Active)
		}
	})
	authService.OnAuthStateChanged(func(userID string, identity *entity.Identity) {
		if identity == nil {
			discussionService.SignOut(userID)
		}
	})

	// 4. Controllers
	c.AuthController = controller.NewAuthController(authService)
	c.OAuthController = controller.NewOAuthController(oauthService, cfg.OAuth.FrontendURL)
	c.UserController = controller.NewUserController(userService, authService)
	c.DiscussionController = controller.NewDiscussionController(discussionService, authService)
	c.ChitChatController = controller.NewChitChatController(chitChatService, authService)
	c.ProxyController = controller.NewProxyController(
		chatbot.GenerateContentURL(cfg.Ai.GeminiBaseURL, cfg.Ai.GeminiModel),
		cfg.Keys.GoogleGemini,
		sysLogger,
	)
	c.NotificationHandler = handler.NewNotificationHandler(wsHub, authService, wsLogger)
	c.WebSocketHub = wsHub

	return c, nil
}

// Start runs the hub and the activity consumer until ctx ends.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)

	if c.ConsumerService == nil {
		return
	}
	if err := c.ConsumerService.Consume(ctx); err != nil {
		c.Logger.Warn(containerModule, "Background consumer error", map[string]interface{}{"error": err.Error()})
	}
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
