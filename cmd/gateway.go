package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/autoreply"
	"github.com/bashclaw/bashclaw/internal/bootstrap"
	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/channels"
	"github.com/bashclaw/bashclaw/internal/channels/discord"
	"github.com/bashclaw/bashclaw/internal/channels/telegram"
	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/gateway"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/spawn"
	"github.com/bashclaw/bashclaw/internal/tools"
)

const mainAgentID = "main"

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the HTTP gateway and all configured channels",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "silent":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(100)})))
		return
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func runGateway() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.WatchFile(); err != nil {
		slog.Warn("config file watch unavailable", "error", err)
	}

	stateDir := resolveStateDir()
	if !filepath.IsAbs(stateDir) {
		if abs, err := filepath.Abs(stateDir); err == nil {
			stateDir = abs
		}
	}
	os.MkdirAll(stateDir, 0755)

	sessStore, err := sessions.Open(filepath.Join(stateDir, "sessions"), sessions.Scope(cfg.GetString("session.scope", string(sessions.ScopePerChannelPeer))))
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	hooksDisp, err := hooks.New(filepath.Join(stateDir, "hooks"))
	if err != nil {
		slog.Error("failed to open hook dispatcher", "error", err)
		os.Exit(1)
	}

	memStore, err := memory.Open(filepath.Join(stateDir, "memory"))
	if err != nil {
		slog.Warn("memory store unavailable", "error", err)
	}

	spawnStore, err := spawn.Open(filepath.Join(stateDir, "spawn"))
	if err != nil {
		slog.Error("failed to open spawn store", "error", err)
		os.Exit(1)
	}

	providerRegistry := registerProviders(cfg)
	if len(providerRegistry) == 0 {
		slog.Warn("no LLM provider configured; set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	toolsReg := buildToolRegistry(memStore)

	workspaceRoot := func(agentID string) string {
		dir := filepath.Join(stateDir, "agents", agentID)
		os.MkdirAll(dir, 0755)
		return dir
	}
	for _, id := range agentIDsOrDefault(cfg) {
		dir := workspaceRoot(id)
		if seeded, err := bootstrap.EnsureWorkspaceFiles(dir); err != nil {
			slog.Warn("bootstrap seeding failed", "agent", id, "error", err)
		} else if len(seeded) > 0 {
			slog.Info("seeded agent workspace templates", "agent", id, "files", seeded)
		}
	}

	eng := agent.New(cfg, sessStore, toolsReg, hooksDisp, providerRegistry, workspaceRoot, filepath.Join(stateDir, "usage", "usage.jsonl"))

	// Registered after eng exists (spawn's subagent closure needs it), but
	// still visible to the tool loop: toolsReg is the same *Registry
	// pointer eng.Tools holds, and Get() resolves at call time, not at
	// agent.New's construction time.
	runSubagent := eng.SpawnRunner(mainAgentID, "spawn", "spawn")
	toolsReg.Register(tools.NewSpawnTool(spawnStore, runSubagent))
	toolsReg.Register(tools.NewSpawnStatusTool(spawnStore))

	router := bus.NewRouter(256)
	channelMgr := channels.NewManager(router)

	autoreplyStore, err := autoreply.Open(filepath.Join(stateDir, "autoreply"))
	if err != nil {
		slog.Warn("autoreply store unavailable", "error", err)
	}
	registerConfiguredChannels(cfg, router, channelMgr, autoreplyStore)

	cronStore, err := cron.OpenStore(filepath.Join(stateDir, "cron", "jobs.json"))
	if err != nil {
		slog.Error("failed to open cron store", "error", err)
		os.Exit(1)
	}
	toolsReg.Register(tools.NewCronTool(cronStore))
	stuckMs := int64(cfg.GetInt("cron.stuckRunMs", 10*60*1000))
	cronRunner, err := cron.NewRunner(cronStore, stateDir, stuckMs, makeCronRunFunc(eng))
	if err != nil {
		slog.Error("failed to start cron runner", "error", err)
		os.Exit(1)
	}

	srv := gateway.NewServer(gateway.Config{
		Store:     cfg,
		Engine:    eng,
		Manager:   channelMgr,
		CronRun:   cronRunner,
		CronStore: cronStore,
		Hooks:     hooksDisp,
		Sessions:  sessStore,
		UIDir:     cfg.GetString("gateway.uiDir", ""),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}
	go cronRunner.Start(ctx)

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		channelMgr.StopAll(stopCtx)
		hooksDisp.Wait(stopCtx)
		cancel()
	}()

	slog.Info("bashclaw gateway starting",
		"version", Version,
		"agents", cfg.AgentIDs(),
		"channels", channelMgr.GetEnabledChannels(),
	)

	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
}

func agentIDsOrDefault(cfg *config.Store) []string {
	ids := cfg.AgentIDs()
	if len(ids) == 0 {
		return []string{mainAgentID}
	}
	return ids
}

// registerProviders builds the set of LLM providers available to the
// engine from API keys in the environment — the config tree names which
// provider an agent uses (agents.defaults.provider / agents.list[].provider)
// but never carries the key itself (§4.A's ${VAR} substitution exists for
// exactly this: keys stay in the environment, not on disk).
func registerProviders(cfg *config.Store) map[string]providers.Provider {
	reg := make(map[string]providers.Provider)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := cfg.GetString("agents.defaults.model", "claude-sonnet-4-5-20250929")
		reg["anthropic"] = providers.NewAnthropicProvider(key, providers.WithAnthropicModel(model))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		apiBase := os.Getenv("OPENAI_API_BASE")
		reg["openai"] = providers.NewOpenAIProvider("openai", key, apiBase, "gpt-4o")
	}
	return reg
}

func buildToolRegistry(memStore *memory.Store) *tools.Registry {
	reg := tools.NewRegistry()
	workspaceDir := filepath.Join(resolveStateDir(), "agents", mainAgentID)

	reg.Register(tools.NewReadFileTool(workspaceDir))
	reg.Register(tools.NewListFilesTool(workspaceDir))
	reg.Register(tools.NewShellTool())
	reg.Register(tools.NewWebFetchTool())

	if memStore != nil {
		reg.Register(tools.NewMemoryTool(memStore))
	}

	return reg
}

// makeCronRunFunc adapts a cron.Job into an agent engine invocation: the
// job's prompt becomes the user message, delivered to its sessionTarget
// (or the main agent if unset).
func makeCronRunFunc(eng *agent.Engine) cron.RunFunc {
	return func(ctx context.Context, job cron.Job) (string, error) {
		agentID := job.SessionTarget
		if agentID == "" {
			agentID = mainAgentID
		}
		return eng.Run(ctx, agentID, job.Prompt, "cron", job.ID, false)
	}
}

func registerConfiguredChannels(cfg *config.Store, router *bus.Router, mgr *channels.Manager, autoreplyStore *autoreply.Store) {
	if token := cfg.GetString("channels.telegram.token", ""); token != "" {
		tgCfg := telegram.Config{
			Token:       token,
			Proxy:       cfg.GetString("channels.telegram.proxy", ""),
			DMPolicy:    cfg.GetString("channels.telegram.dmPolicy", "open"),
			GroupPolicy: cfg.GetString("channels.telegram.groupPolicy", "mention"),
		}
		tg, err := telegram.New(tgCfg, router)
		if err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			tg.SetAutoreply(autoreplyStore)
			mgr.RegisterChannel("telegram", tg)
			slog.Info("telegram channel enabled")
		}
	}

	if token := cfg.GetString("channels.discord.token", ""); token != "" {
		dcCfg := discord.Config{
			Token:       token,
			DMPolicy:    cfg.GetString("channels.discord.dmPolicy", "open"),
			GroupPolicy: cfg.GetString("channels.discord.groupPolicy", "mention"),
		}
		dc, err := discord.New(dcCfg, router)
		if err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			dc.SetAutoreply(autoreplyStore)
			mgr.RegisterChannel("discord", dc)
			slog.Info("discord channel enabled")
		}
	}
}
