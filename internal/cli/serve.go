package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valetd/valet/internal/actions"
	"github.com/valetd/valet/internal/api"
	"github.com/valetd/valet/internal/audit"
	"github.com/valetd/valet/internal/bus"
	"github.com/valetd/valet/internal/channels"
	"github.com/valetd/valet/internal/config"
	"github.com/valetd/valet/internal/confirm"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/rbac"
	"github.com/valetd/valet/internal/router"
	"github.com/valetd/valet/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant (channels, API, and pipeline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	printHeader("Valet " + version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Security.Owners) == 0 {
		return fmt.Errorf("no owners configured; set security.owners in the config file")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	st, err := store.Open(cfg.Paths.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	model := intent.NewOllamaClient(cfg.Model.BaseURL, cfg.Model.Name, cfg.Model.Timeout)

	sinks := audit.MultiSink{audit.NewStoreSink(st)}
	if cfg.Kafka.Brokers != "" {
		kafkaSink := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("audit export enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.AuditTopic)
	}

	registry := buildRegistry(cfg, st, model, time.Now())
	if err := registry.Validate(intent.All()); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	// One budget shared by every transport, checked before classification.
	// The router gets no limiter of its own or each message would count twice.
	limiter := ratelimit.New(cfg.Security.RateLimitMax, time.Duration(cfg.Security.RateLimitWindowSec)*time.Second)

	rt := router.New(router.Options{
		Registry:  registry,
		Matrix:    rbac.DefaultMatrix(),
		Resolver:  rbac.NewResolver(cfg.Security.Owners),
		Confirms:  confirm.NewStore(cfg.Security.ExtraAffirmatives...),
		Sink:      sinks,
		Threshold: cfg.Security.ConfidenceThreshold,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bus.NewMessageBus()
	engine := channels.NewEngine(b, rt, model, st, log)
	engine.HistorySize = cfg.Model.HistorySize
	engine.Limiter = limiter
	go b.DispatchOutbound(ctx)
	go engine.Run(ctx)

	if cfg.Telegram.Enabled {
		tg := channels.NewTelegramChannel(b, cfg.Telegram.Token, cfg.Telegram.AllowFrom, log)
		b.Subscribe(tg.Name(), func(msg *bus.OutboundMessage) {
			if err := tg.Send(ctx, msg); err != nil {
				log.Warn("telegram send failed", "error", err)
			}
		})
		go func() {
			if err := tg.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("telegram channel stopped", "error", err)
			}
		}()
		fmt.Println(color.GreenString("✓") + " Telegram channel started")
	}

	if cfg.API.Enabled {
		srv := api.NewServer(rt, model, cfg.API.Token, log)
		srv.Limiter = limiter
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.API.Listen); err != nil {
				log.Error("api server stopped", "error", err)
			}
		}()
		fmt.Println(color.GreenString("✓") + " API listening on " + cfg.API.Listen)
	}

	fmt.Println(color.GreenString("✓") + " Valet is running. Ctrl-C to stop.")
	<-ctx.Done()
	fmt.Println("\nShutting down.")
	return nil
}

// buildRegistry registers a handler for every known action.
func buildRegistry(cfg *config.Config, st *store.Service, model *intent.OllamaClient, started time.Time) *actions.Registry {
	scope := actions.NewFileScope(cfg.Desktop.FileBaseDirs)

	apps := actions.DefaultApps()
	for name, argv := range cfg.Desktop.Apps {
		apps[name] = argv
	}

	reg := actions.NewRegistry()
	reg.Register(&actions.Chat{})
	reg.Register(&actions.Help{Registry: reg})
	reg.Register(&actions.Status{Started: started, ModelName: cfg.Model.Name, ModelProbe: model.Status})
	reg.Register(&actions.SystemInfo{})
	reg.Register(&actions.ReadFile{Scope: scope})
	reg.Register(&actions.WriteFile{Scope: scope})
	reg.Register(&actions.DeleteFile{Scope: scope})
	reg.Register(&actions.ListFiles{Scope: scope})
	reg.Register(&actions.SearchFiles{Scope: scope})
	reg.Register(&actions.SendFile{Scope: scope})
	reg.Register(&actions.Screenshot{Dir: cfg.Paths.ScreenshotDir})
	reg.Register(&actions.OpenApp{Apps: apps})
	reg.Register(&actions.RunCommand{})
	reg.Register(&actions.RunScript{Scripts: cfg.Desktop.Scripts})
	reg.Register(&actions.KillProcess{})
	reg.Register(&actions.Lock{})
	reg.Register(&actions.Volume{})
	reg.Register(&actions.Power{})
	reg.Register(actions.NewSendMessage(cfg.Slack.Token, cfg.Slack.DefaultChannel, actions.SMTPSettings{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		From:     cfg.SMTP.From,
		Password: cfg.SMTP.Password,
	}))
	reg.Register(&actions.SaveNote{Store: st})
	reg.Register(&actions.GetNotes{Store: st})
	reg.Register(&actions.ClearHistory{Store: st})
	return reg
}
