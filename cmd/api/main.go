package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/zhouzirui/invoice-relay/backend/internal/config"
	"github.com/zhouzirui/invoice-relay/backend/internal/handler"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/ai"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/chat"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/registry"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/secrets"
)

type flags struct {
	envFile   string
	addr      string
	agentFile string
	logLevel  string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("invoice-relay", pflag.ContinueOnError)
	flagSet.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flagSet.StringVar(&f.addr, "addr", "", "listen address or port (overrides PORT)")
	flagSet.StringVar(&f.agentFile, "agent-file", "", "YAML agent definition (overrides AGENT_FILE)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	return f, flagSet.Parse(args)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(opts.envFile); err != nil {
		log.Warnf("failed to load %s: %v", opts.envFile, err)
		log.Info("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := applyFlags(cfg, opts); err != nil {
		log.Fatalf("invalid arguments: %v", err)
	}
	configureLogging(cfg.Log)

	if cfg.Secrets.Enabled() {
		store, err := secrets.NewFromEnvironment(ctx)
		if err != nil {
			log.Fatalf("failed to initialize parameter store: %v", err)
		}
		if err := cfg.ResolveSecrets(ctx, store); err != nil {
			log.Fatalf("failed to resolve secrets: %v", err)
		}
		log.WithField("prefix", cfg.Secrets.ParamPrefix).Info("secrets resolved from parameter store")
	}

	if cfg.Server.APIKey == "" {
		log.Warn("API_KEY is not set, admin endpoints will reject every request")
	}

	// One history and one registry for the whole process; every connection
	// shares them.
	history := chat.NewService()
	connections := registry.New()

	runner, err := buildRunner(ctx, cfg)
	if err != nil {
		log.Warnf("failed to initialize agent runtime: %v", err)
		log.Warn("continuing without agent, chat turns will return the error reply")
		runner = ai.Unavailable(err)
	} else {
		log.Info("agent runtime initialized successfully")
	}
	dispatcher := ai.NewDispatcher(history, runner)

	router := handler.NewRouter(cfg.Server.APIKey, history, dispatcher, connections)

	startServer(ctx, cfg.Server, router)
}

func applyFlags(cfg *config.Config, opts flags) error {
	if opts.addr != "" {
		addr, err := config.ParseAddr(opts.addr)
		if err != nil {
			return err
		}
		cfg.Server.Addr = addr
	}
	if opts.agentFile != "" {
		cfg.Agent.DefinitionFile = opts.agentFile
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return nil
}

func configureLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func buildRunner(ctx context.Context, cfg *config.Config) (ai.Runner, error) {
	def, err := config.LoadAgentDefinition(cfg.Agent.DefinitionFile)
	if err != nil {
		return nil, err
	}

	definition := ai.ResolveDefinition(def, cfg.Agent.MaxStep)
	chatModel, err := modelConfig(cfg.AI, definition).NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.ToolServer.Secret == "" {
		log.Warn("STRIPE_API_KEY is not set, the tool server will start without credentials")
	}

	return ai.NewAgentRunner(
		chatModel,
		definition,
		ai.MCPTools(cfg.ToolServer),
		cfg.ToolServer.Timeout,
	)
}

// modelConfig 让智能体定义中的模型覆盖环境配置。
func modelConfig(aiCfg config.AIConfig, definition ai.Definition) config.AIConfig {
	return aiCfg.WithModel(definition.Model)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Infof("invoice relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
