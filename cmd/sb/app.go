package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/channel"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/dispatch"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/logging"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/notify/discord"
	"github.com/zulandar/switchboard/internal/notify/slack"
	"github.com/zulandar/switchboard/internal/report"
	"github.com/zulandar/switchboard/internal/session"
	"gorm.io/gorm"
)

// app is the set of services one command invocation works with.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	db  *gorm.DB

	campaigns *db.CampaignStore
	templates *channel.TemplateClient // nil when the platform is not configured

	backend  *gateway.Client
	chatline *gateway.Client

	sessions   *session.Manager
	reports    *report.Aggregator
	dispatcher *dispatch.Dispatcher
}

// newApp loads configPath and wires every service. Nothing touches the
// network until a command calls into a service.
func newApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log, cmd.ErrOrStderr())

	gormDB, err := db.Connect(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		closeDB(gormDB)
		return nil, err
	}
	a, err := wire(cfg, gormDB, log)
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}
	return a, nil
}

// closeDB releases the store's connection pool.
func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}

// wire builds the service graph over an open store.
func wire(cfg *config.Config, gormDB *gorm.DB, log zerolog.Logger) (*app, error) {
	a := &app{
		cfg:       cfg,
		log:       log,
		db:        gormDB,
		campaigns: db.NewCampaignStore(gormDB),
	}

	var err error
	if a.backend, err = newClient(cfg.Backend, log); err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	if a.chatline, err = newClient(cfg.ChatLine.EndpointConfig, log); err != nil {
		return nil, fmt.Errorf("chat-line client: %w", err)
	}

	if cfg.Platform.Enabled() {
		platform, err := gateway.New(gateway.Options{
			BaseURL: cfg.Platform.BaseURL,
			Token:   cfg.Platform.Token,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("platform client: %w", err)
		}
		a.templates, err = channel.NewTemplateClient(channel.TemplateClientOpts{
			Platform:  platform,
			AccountID: cfg.Platform.AccountID,
			Recorder:  db.NewTemplateStore(gormDB),
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
	}

	a.sessions, err = session.NewManager(session.ManagerOpts{
		Remote: session.NewGatewayRemote(a.chatline),
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	a.reports, err = report.NewAggregator(report.AggregatorOpts{
		Backend:  a.backend,
		ChatLine: a.chatline,
		Progress: a.campaigns,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	chat, err := channel.NewChatLineAdapter(channel.ChatLineOpts{
		Gateway:    a.chatline,
		Backend:    a.backend,
		UploadPath: cfg.Platform.UploadURL,
		Language:   cfg.Platform.Language,
		Recorder:   a.campaigns,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	a.dispatcher, err = dispatch.New(dispatch.Opts{
		Adapters: []channel.Adapter{
			channel.NewSMSAdapter(a.backend, log),
			channel.NewEmailAdapter(a.backend, log),
			chat,
		},
		Sessions: a.sessions,
		Reports:  a.reports,
		Recorder: a.campaigns,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newClient(ep config.EndpointConfig, log zerolog.Logger) (*gateway.Client, error) {
	return gateway.New(gateway.Options{
		BaseURL:    ep.BaseURL,
		Token:      ep.Token,
		Timeout:    ep.Timeout,
		RatePerSec: ep.RatePerSec,
		Logger:     log,
	})
}

// close releases the store connection.
func (a *app) close() {
	a.sessions.Dispose()
	closeDB(a.db)
}

// newNotifier picks the notification sink named in the config.
func newNotifier(cfg config.NotifyConfig, log zerolog.Logger) (notify.Notifier, error) {
	platforms := cfg.Platforms()
	if len(platforms) == 0 {
		return notify.NewLogNotifier(log), nil
	}
	var all notify.Multi
	for _, p := range platforms {
		n, err := platformNotifier(p, cfg, log)
		if err != nil {
			return nil, err
		}
		all = append(all, n)
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

func platformNotifier(platform string, cfg config.NotifyConfig, log zerolog.Logger) (notify.Notifier, error) {
	switch platform {
	case "slack":
		return slack.New(slack.Opts{BotToken: cfg.SlackBotToken, ChannelID: cfg.Channel})
	case "discord":
		return discord.New(discord.Opts{BotToken: cfg.DiscordBotToken, ChannelID: cfg.Channel})
	case "log":
		return notify.NewLogNotifier(log), nil
	}
	return nil, fmt.Errorf("notify: unknown platform %q", platform)
}

// addConfigFlag registers the shared --config flag.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", defaultConfigPath, "path to Switchboard config file")
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(cmd *cobra.Command, configPath string, fn func(a *app, out io.Writer) error) error {
	a, err := newApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a, cmd.OutOrStdout())
}
