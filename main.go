package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/auth"
	"github.com/khanghh/kguard/internal/common"
	"github.com/khanghh/kguard/internal/config"
	"github.com/khanghh/kguard/internal/handlers/api"
	"github.com/khanghh/kguard/internal/lockout"
	"github.com/khanghh/kguard/internal/mail"
	"github.com/khanghh/kguard/internal/middlewares"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/internal/recovery"
	"github.com/khanghh/kguard/internal/render"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/internal/twofactor"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "kguard - account authentication and lockout service"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		serveCommand,
		provisionCommand,
		unlockCommand,
		activateCommand,
		deactivateCommand,
		auditCommand,
		keygenCommand,
		{
			Name:  "version",
			Usage: "Print version information",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func openDialector(driver string, dsn string) gorm.Dialector {
	if driver == "mysql" {
		return mysql.Open(dsn)
	}
	return sqlite.Open(dsn)
}

func mustInitDatabase(dbConfig config.DatabaseConfig, debug bool) *gorm.DB {
	logLevel := gormlogger.Warn
	if debug {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(openDialector(dbConfig.Driver, dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		slog.Error("Failed to connect to database", "driver", dbConfig.Driver, "error", err)
		os.Exit(1)
	}

	if len(dbConfig.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(dbConfig.Replicas))
		for _, dsn := range dbConfig.Replicas {
			replicas = append(replicas, openDialector(dbConfig.Driver, dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})
		if err := db.Use(resolver); err != nil {
			slog.Error("Failed to register database replicas", "error", err)
			os.Exit(1)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}
	if dbConfig.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	}
	if dbConfig.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	}
	if dbConfig.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(dbConfig.ConnMaxIdleTime)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	return db
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redisstorage.Storage {
	return redisstorage.New(redisstorage.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "smtp":
		sender, err := mail.NewSMTPMailSender(mailCfg.SMTP, mailCfg.From)
		if err != nil {
			slog.Error("Failed to initialize SMTP mail sender", "error", err)
			os.Exit(1)
		}
		return sender
	case "log":
		return mail.NewLogMailSender(mailCfg.From)
	}
	slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
	os.Exit(1)
	return nil
}

func mustInitResetTokenStore(backend string, db *gorm.DB, kv store.Storage) recovery.TokenStore {
	switch backend {
	case "redis":
		return recovery.NewKVTokenStore(kv, time.Now)
	case "memory":
		return recovery.NewKVTokenStore(store.NewMemoryStorage(time.Minute), time.Now)
	}
	return recovery.NewDBTokenStore(db)
}

type appContext struct {
	config    *config.Config
	db        *gorm.DB
	rdb       redis.UniversalClient
	auditRepo audit.AuditEventRepository
	auth      *auth.Service
}

func (a *appContext) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// mustInitApp loads the config and wires every component of the service.
func mustInitApp(ctx *cli.Context) *appContext {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		os.Exit(1)
	}
	debug := cfg.Debug || ctx.IsSet(debugFlag.Name)
	mustInitLogger(debug)

	db := mustInitDatabase(cfg.Database, debug)
	var (
		rdb redis.UniversalClient
		kv  store.Storage
	)
	if cfg.Redis.URL != "" {
		rdb = mustInitRedisStorage(cfg.Redis).Conn()
		kv = store.NewRedisStorage(rdb)
	} else {
		kv = store.NewMemoryStorage(time.Minute)
	}

	renderer, err := render.New(cfg.TemplateDir, map[string]interface{}{
		"siteName": cfg.SiteName,
		"baseURL":  cfg.BaseURL,
	})
	if err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}
	verifier, err := password.DefaultVerifier(cfg.Security.Argon2)
	if err != nil {
		slog.Error("Invalid argon2 parameters", "error", err)
		os.Exit(1)
	}

	// repositories
	var (
		accountRepo = accounts.NewAccountRepository(db)
		auditRepo   = audit.NewAuditEventRepository(db)
	)

	// services
	var (
		policy       = password.NewPolicy(cfg.Security.PasswordMinLength)
		recorder     = audit.NewRecorder(auditRepo)
		notifier     = mail.NewNotifier(mustInitMailSender(cfg.Mail), renderer, cfg.SiteName)
		resetTokens  = mustInitResetTokenStore(cfg.Security.ResetTokenBackend, db, kv)
		recoveryFlow = recovery.NewFlow(accountRepo, resetTokens, verifier, notifier, recorder, recovery.Config{
			Policy: policy,
			TTL:    cfg.Security.ResetTokenTTL,
		})
	)
	authService, err := auth.NewService(auth.Options{
		Accounts:          accountRepo,
		Verifier:          verifier,
		Policy:            policy,
		PrimaryGuard:      lockout.NewPrimaryGuard(accountRepo, cfg.Security.Lockout.Primary),
		SecondFactorGuard: lockout.NewSecondFactorGuard(accountRepo, cfg.Security.Lockout.SecondFactor),
		TwoFactor:         twofactor.NewAuthenticator(accountRepo, cfg.MasterKey, twofactor.WithIssuer(cfg.SiteName), twofactor.WithReplayStore(kv)),
		Tickets:           twofactor.NewChallenger(cfg.MasterKey, cfg.Security.TicketLifetime, twofactor.WithTicketStore(kv)),
		Recovery:          recoveryFlow,
		Notifier:          notifier,
		Auditor:           recorder,
	})
	if err != nil {
		slog.Error("Failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	return &appContext{
		config:    cfg,
		db:        db,
		rdb:       rdb,
		auditRepo: auditRepo,
		auth:      authService,
	}
}

func setupAPIRoutes(router fiber.Router, authService *auth.Service) {
	authHandler := api.NewAuthHandler(authService)
	authHandler.Register(router.Group("/api"))
}

func run(ctx *cli.Context) error {
	appCtx := mustInitApp(ctx)
	defer appCtx.Close()
	cfg := appCtx.config

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ProxyHeader:   cfg.ProxyHeader,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept",
		}))
	}
	router.Use(middlewares.ClientInfo())
	setupAPIRoutes(router, appCtx.auth)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, appCtx.rdb, appCtx.db)
	defer func() {
		term()
		<-done
	}()
	slog.Info("Starting server", "addr", cfg.ListenAddr, "version", params.VersionWithCommit(gitCommit, gitDate))
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
