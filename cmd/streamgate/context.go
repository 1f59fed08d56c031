package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"streamgate/internal/catalog"
	"streamgate/internal/config"
	"streamgate/internal/database"
	"streamgate/internal/deps"
	"streamgate/internal/gateway"
	"streamgate/internal/logging"
	"streamgate/internal/passcode"
	"streamgate/internal/queue"
	"streamgate/internal/quota"
	"streamgate/internal/streamtoken"
	"streamgate/internal/transcode"
	"streamgate/internal/worker"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// application holds the services a command needs, all sharing one database
// handle.
type application struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *database.DB
	catalog   *catalog.Catalog
	ledger    *quota.Ledger
	codec     *streamtoken.Codec
	queue     *queue.Store
	passcodes *passcode.Service
}

// withApp opens the database and runs fn. Long-running commands log to
// stdout and the log file; one-shot commands only append to the log file so
// their own output stays readable.
func (c *commandContext) withApp(cmd *cobra.Command, longRunning bool, fn func(*application) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	var logger *slog.Logger
	if longRunning {
		logger, err = logging.NewFromConfig(cfg)
	} else {
		logger, err = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      "json",
			OutputPaths: []string{cfg.LogPath()},
		})
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Open(commandContextOrBackground(cmd), cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	codec, err := streamtoken.New(cfg.Stream.Secret, cfg.TokenTTL())
	if err != nil {
		return err
	}
	ledger := quota.NewLedger(db)
	app := &application{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		catalog:   catalog.New(db, cfg.Paths.ContentRoot),
		ledger:    ledger,
		codec:     codec,
		queue:     queue.NewStore(db),
		passcodes: passcode.New(db, ledger, cfg.Quota.DefaultGB),
	}
	return fn(app)
}

func (a *application) newGateway() *gateway.Gateway {
	return gateway.New(a.cfg, a.catalog, a.ledger, a.codec, a.logger)
}

// newWorker checks that ffmpeg is reachable and builds the processing worker.
func (a *application) newWorker() (*worker.Worker, error) {
	statuses := deps.CheckBinaries([]deps.Requirement{deps.FFmpegRequirement(a.cfg.Transcoder.FFmpegBinary)})
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return nil, fmt.Errorf("%s unavailable: %s (set transcoder.ffmpeg_binary)", missing[0].Name, missing[0].Detail)
	}
	tc := transcode.NewFFmpeg(a.cfg.Transcoder, a.logger)
	return worker.New(a.cfg, a.queue, tc, a.logger), nil
}

func commandContextOrBackground(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
