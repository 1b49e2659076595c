package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"discussion-companion-be/internal/bootstrap"
	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/discussion"
	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/internal/repository/unitofwork"
	"discussion-companion-be/internal/service"
	"discussion-companion-be/pkg/database"
	"discussion-companion-be/pkg/docstore"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type options struct {
	email    string
	password string
	register bool
	store    string
	sqlite   string
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:   "discuss",
		Short: "Talk through a topic with the AI discussion companion",
		Long: `An interactive terminal client for the discussion companion.

Discussions, notes and the recent list are stored the same way the server
stores them, so a discussion started here can be resumed from the web app
when both point at the same store.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.Flags().StringVar(&opts.email, "email", os.Getenv("DISCUSS_EMAIL"), "account email")
	root.Flags().StringVar(&opts.password, "password", os.Getenv("DISCUSS_PASSWORD"), "account password")
	root.Flags().BoolVar(&opts.register, "register", false, "create the account before signing in")
	root.Flags().StringVar(&opts.store, "store", "", "document store: memory, gorm or redis (default DOCSTORE_DRIVER)")
	root.Flags().StringVar(&opts.sqlite, "sqlite", "", "use a local SQLite file instead of DB_CONNECTION_STRING")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg := config.Load()
	if opts.store != "" {
		cfg.Store.Driver = opts.store
	}
	if opts.sqlite != "" {
		cfg.Database.Driver = database.DriverSQLite
		cfg.Database.Connection = opts.sqlite
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	dbCfg := database.GormConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.Connection, Quiet: true}

	// The terminal owns stdout; logs go to the file only.
	log := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer log.Sync()

	db, err := database.NewGormDB(dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(&model.User{}, &docstore.DocumentRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	auth := service.NewAuthService(unitofwork.NewRepositoryFactory(db), cfg.Auth, nil, log)
	creds := dto.LoginRequest{Email: opts.email, Password: opts.password}
	var res *dto.AuthResponse
	if opts.register {
		res, err = auth.Register(ctx, &dto.RegisterRequest{Email: creds.Email, Password: creds.Password})
	} else {
		res, err = auth.Login(ctx, &creds)
	}
	if err != nil {
		return fmt.Errorf("%s", apperror.UserMessage(err))
	}
	identity, err := auth.VerifyToken(ctx, res.Token)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Store.Driver == "redis" || cfg.Store.Feed == "redis" {
		rdb = bootstrap.NewRedisClient(cfg.App.RedisURL)
		defer rdb.Close()
	}
	feed, err := bootstrap.NewFeed(cfg.Store, rdb, log)
	if err != nil {
		return err
	}
	defer feed.Close()
	store, err := bootstrap.NewStore(cfg.Store, db, rdb, feed)
	if err != nil {
		return err
	}

	generator := bootstrap.NewGenerator(*cfg)
	machine := discussion.NewMachine(
		discussion.NewSynchronizer(store, generator, cfg.Store.TenantID, log),
		generator,
		log,
	)

	return newREPL(machine, *identity, os.Stdin, os.Stdout).run(ctx)
}
