package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/verassium/internal/api"
	"github.com/verassium/internal/completion"
	"github.com/verassium/internal/config"
	"github.com/verassium/internal/database"
	"github.com/verassium/internal/logging"
	"github.com/verassium/internal/session"
	"github.com/verassium/internal/store"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Verassium API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Use an in-memory store instead of Postgres",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Log.Level)

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	var (
		turns    store.MessageStore
		registry store.ConversationRegistry
	)
	if c.Bool("dev") {
		mem := store.NewMemoryStore()
		turns, registry = mem, mem
		log.Warn().Msg("Running with in-memory store, nothing will be persisted")
	} else {
		db, err := database.NewDB(context.Background(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		pg := store.NewPostgresStore(db)
		turns, registry = pg, pg
	}

	client, err := completion.NewGroqClient(completion.Options{
		APIKey:            cfg.AI.APIKey,
		BaseURL:           cfg.AI.BaseURL,
		Timeout:           time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	})
	if err != nil {
		return err
	}

	coordinator := session.New(turns, registry, client, cfg.AI.MaxContextTurns)

	log.Info().Int("port", port).Msg("Starting Verassium API server")
	server := api.NewServer(port, coordinator, cfg.Auth.JWTSecret)
	return server.Start()
}
