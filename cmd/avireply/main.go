package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/avireply/avireply/internal/avireply"
	"github.com/avireply/avireply/internal/avito"
	"github.com/avireply/avireply/internal/config"
	"github.com/avireply/avireply/internal/dialog"
	"github.com/avireply/avireply/internal/http_api"
	"github.com/avireply/avireply/internal/notificator"
	"github.com/avireply/avireply/internal/repository"
	"github.com/avireply/avireply/internal/tochka"
	"github.com/avireply/avireply/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "avireply",
		Usage: "Avireply answers marketplace chats and watches account balances",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-driver", Usage: "Database driver (postgres or sqlite)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.StringFlag{Name: "instance-id", Usage: "Name of this instance in cycle leases"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
		Commands: []*cli.Command{
			{
				Name:  "check-token",
				Usage: "Verify the payment provider token and exit",
				Action: func(c *cli.Context) error {
					return checkToken(c)
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("database-driver") {
		cfg.DatabaseDriver = strings.ToLower(c.String("database-driver"))
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("instance-id") {
		cfg.InstanceID = c.String("instance-id")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB(cfg *config.Config, log *logger.Logger) (*repository.GormDB, error) {
	if cfg.DatabaseDriver == config.DriverSQLite {
		return repository.NewSQLiteDB(cfg.SQLitePath, log)
	}
	return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync() //nolint:errcheck

	// Initialize database
	db, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	market := avito.NewClient(cfg.AvitoBaseURL, cfg.HTTPTimeout, log.With("component", "avito"))
	provider := tochka.NewClient(cfg.TochkaBaseURL, cfg.TochkaJWTToken, cfg.TochkaBankCode, cfg.PaymentSuccessURL, cfg.HTTPTimeout, log.With("component", "tochka"))

	telegram, err := notificator.NewTelegramNotificator(log.With("component", "telegram"), cfg.TelegramBotToken, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %v", err)
	}
	notif := notificator.NewNotificator(log, telegram)

	app, err := avireply.NewAvireply(db, market, provider, notif, nil, log, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize avireply: %v", err)
	}
	telegram.SetHandler(notificator.NewFrontEnd(app, dialog.NewMachine(), cfg.AdminTelegramID, cfg.ReminderURL, log.With("component", "frontend")))

	var webhook http.Handler
	if cfg.WebhookMode() {
		webhook = telegram.WebhookHandler()
	}
	apiServer := http_api.NewHTTPServer(app, cfg.APIPort, cfg.AdminAPIToken, webhook, log.With("component", "http"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go apiServer.Start()
	go func() {
		if err := telegram.Start(ctx); err != nil {
			log.Error("Telegram updates stopped", "error", err)
			stop()
		}
	}()

	// Start the application
	app.Start()
	log.Info("Avireply started", "instance_id", cfg.InstanceID, "driver", cfg.DatabaseDriver, "webhook", cfg.WebhookMode())

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CycleTimeout)
	defer cancel()
	app.Stop(shutdownCtx)
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	return nil
}

func checkToken(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync() //nolint:errcheck

	provider := tochka.NewClient(cfg.TochkaBaseURL, cfg.TochkaJWTToken, cfg.TochkaBankCode, cfg.PaymentSuccessURL, cfg.HTTPTimeout, log)
	if err := provider.VerifyToken(c.Context); err != nil {
		return fmt.Errorf("payment provider token rejected: %w", err)
	}
	log.Info("Payment provider token is valid")
	return nil
}
