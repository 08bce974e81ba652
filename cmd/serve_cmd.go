package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/nlbuilder/forgehost/internal/actions"
	"github.com/nlbuilder/forgehost/internal/chatplatform"
	"github.com/nlbuilder/forgehost/internal/config"
	"github.com/nlbuilder/forgehost/internal/cronjob"
	"github.com/nlbuilder/forgehost/internal/forumsync"
	"github.com/nlbuilder/forgehost/internal/runtime"
	"github.com/nlbuilder/forgehost/internal/runtime/strategies"
	"github.com/nlbuilder/forgehost/internal/store"
	"github.com/nlbuilder/forgehost/internal/store/cache"
	"github.com/nlbuilder/forgehost/internal/store/file"
	"github.com/nlbuilder/forgehost/internal/store/pg"
	"github.com/nlbuilder/forgehost/internal/tracing"
)

// defaultActionRateLimit bounds dispatched actions per owner key per hour
// (§4.6), keeping a misbehaving prompt from hammering the chat platform.
const defaultActionRateLimit = 60

// defaultChainLane bounds concurrent chained/spawned executor runs
// host-wide (§4.5 chain fan-out).
const defaultChainLane = 4

// shutdownGrace is how long serve waits for the scheduler/collector to
// drain in-flight work before forcing exit on SIGINT/SIGTERM.
const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, forum sync engine, and chat platform connection",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServe(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
}

func runServe() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	managed := cfg.Database.Mode == "managed" && cfg.Database.PostgresDSN != ""
	if managed {
		if err := pg.Migrate(cfg.Database.PostgresDSN); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	st, closeStore, err := openRecordStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create chat platform session: %w", err)
	}
	chatClient := chatplatform.NewDiscordClient(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var forum chatplatform.ForumChannel
	if cfg.Sync.ForumChannelID != "" {
		forum, err = chatClient.GetForumChannel(ctx, cfg.Sync.ForumChannelID)
		if err != nil {
			slog.Warn("serve: forum channel unresolved, forum sync and forum-scoped actions disabled", "error", err)
			forum = nil
		}
	}

	registry := strategies.NewDefaultRegistry()
	tracker := runtime.NewTracker()
	defer tracker.KillAll()
	invoker := cronjob.NewRuntimeInvoker(registry, tracker, runtime.InvokeConfig{})

	toolTiers := runtime.NewToolTierMap(joinToolTierOverrides(cfg.ToolTiers), nil)

	lock, err := cronjob.NewFileLock(cfg.LockDir)
	if err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	runControl := cronjob.NewRunControl()
	lane := cronjob.NewLane(defaultChainLane)

	var allowedChannels map[string]bool
	if len(cfg.Channels) > 0 {
		allowedChannels = make(map[string]bool, len(cfg.Channels))
		for _, c := range cfg.Channels {
			allowedChannels[strings.ToLower(c)] = true
		}
	}

	defaultModel := resolveDefaultModel(cfg)
	rateLimiter := actions.NewRateLimiter(defaultActionRateLimit)

	workspaceContext, err := buildWorkspaceContext(ctx, cfg)
	if err != nil {
		slog.Warn("serve: workspace context build failed, continuing without it", "error", err)
	}

	executor := &cronjob.Executor{
		Store:            st,
		Lock:             lock,
		RunControl:       runControl,
		Invoker:          invoker,
		ChatClient:       chatClient,
		ToolTiers:        toolTiers,
		GuildID:          cfg.GuildID,
		DefaultModel:     defaultModel,
		AllowedChannels:  allowedChannels,
		ActionsEnabled:   true,
		WorkspaceContext: workspaceContext,
		Chained:          lane,
	}
	executor.Dispatcher = func(depth int) *actions.Dispatcher {
		d := actions.NewDispatcher(rateLimiter, depth)
		d.Handle(actions.TypeSendMessage, actions.NewSendMessageHandler(chatClient, cfg.GuildID))
		if forum != nil {
			d.Handle(actions.TypeEditMessage, actions.NewEditMessageHandler(forum))
			d.Handle(actions.TypePinMessage, actions.NewPinMessageHandler(forum))
			d.Handle(actions.TypeArchiveThread, actions.NewArchiveThreadHandler(forum))
			d.Handle(actions.TypeSetTags, actions.NewSetTagsHandler(forum))
		}
		return d
	}

	scheduler := cronjob.NewScheduler(st, executor)
	executor.Scheduler = scheduler
	for _, rec := range st.List() {
		scheduler.Register(&cronjob.CronJob{CronID: rec.CronID, GuildID: cfg.GuildID})
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	var tagWatcher *config.TagMapWatcher
	if forum != nil && cfg.Sync.TagMapPath != "" {
		tagWatcher = config.NewTagMapWatcher(cfg.Sync.TagMapPath)
		tagWatcher.Start()
		defer tagWatcher.Stop()

		classifier := &forumsync.RuntimeClassifier{Invoker: invoker, DefaultModel: defaultModel}
		engine := &forumsync.Engine{
			Store:      st,
			Forum:      forum,
			Classifier: classifier,
			Tags:       tagWatcher.Map,
			ThrottleMs: cfg.Sync.ThrottleMs,
		}
		go runForumSyncLoop(ctx, engine, forum, cfg.Sync.PollIntervalMs)
	}

	var collector *tracing.Collector
	if isManagedMode() {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			slog.Warn("serve: tracing disabled, could not open postgres for traces", "error", err)
		} else {
			collector = tracing.NewCollector(pg.NewTracingStore(db))
			initOTelExporter(ctx, cfg, collector)
			collector.Start()
			defer collector.Stop()
		}
	}

	slog.Info("serve: host running", "guildId", cfg.GuildID, "managed", managed, "forumSync", forum != nil, "tracing", collector != nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("serve: shutdown signal received, draining")

	done := make(chan struct{})
	go func() {
		cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		slog.Warn("serve: shutdown grace period exceeded, exiting anyway")
	}
	return nil
}

// openRecordStore mirrors openCronStore's file-vs-managed branching, also
// returning whether a postgres DSN backs it (callers decide independently
// whether to also stand up a tracing store on that same mode).
func openRecordStore(cfg *config.Config) (store.RecordStore, func(), error) {
	var st store.RecordStore
	if cfg.Database.Mode == "managed" && cfg.Database.PostgresDSN != "" {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st = pg.NewCronStore(db)
	} else {
		opts := []file.Option{}
		if cfg.EncryptionKey != "" {
			opts = append(opts, file.WithEncryptionKey(cfg.EncryptionKey))
		}
		fileStore, err := file.Open(cfg.CronStorePath, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		st = fileStore
	}

	if cfg.Redis.Addr != "" {
		st = cache.New(st, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
	}

	return st, func() { _ = st.Close() }, nil
}

// runForumSyncLoop polls the forum on the configured interval and runs one
// reconciliation pass per tick (§4.5). A fetch failure is logged and
// skipped; it never stops the loop.
func runForumSyncLoop(ctx context.Context, engine *forumsync.Engine, forum chatplatform.ForumChannel, intervalMs int) {
	if intervalMs <= 0 {
		intervalMs = 30000
	}
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			threads, err := forumsync.FetchAllThreads(ctx, forum)
			if err != nil {
				slog.Warn("serve: forum sync fetch failed", "error", err)
				continue
			}
			stats := engine.Run(ctx, threads)
			slog.Debug("serve: forum sync pass complete",
				"classified", stats.Phase1Classified, "tagsEdited", stats.Phase1TagsEdited,
				"renamed", stats.Phase2Renamed, "statusEdited", stats.Phase3Edited,
				"statusRecreated", stats.Phase3Recreated, "orphans", len(stats.Phase4Orphans))
		}
	}
}

// joinToolTierOverrides flattens the model->tier config map into the
// "model=tier,model2=tier2" form runtime.NewToolTierMap's overrideEnv
// parameter expects.
func joinToolTierOverrides(tiers map[string]string) string {
	if len(tiers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tiers))
	for model, tier := range tiers {
		parts = append(parts, model+"="+tier)
	}
	return strings.Join(parts, ",")
}

// resolveDefaultModel picks the host-wide fallback model: the "claude"
// runtime's configured default if set, else "claude" itself (§4.2's
// adapter framework ships a Claude strategy by default).
func resolveDefaultModel(cfg *config.Config) string {
	if rt, ok := cfg.Runtimes["claude"]; ok && rt.DefaultModel != "" {
		return rt.DefaultModel
	}
	return "claude"
}

// buildWorkspaceContext assembles the executor's pre-rendered context-file
// preamble from local disk and, if configured, an S3 bucket (§6 DOMAIN
// STACK: "Optional S3-backed workspace context file source, alongside
// local disk"). Either source is skipped entirely when unconfigured.
func buildWorkspaceContext(ctx context.Context, cfg *config.Config) (string, error) {
	var sources []cronjob.ContextSource
	if cfg.Context.Dir != "" {
		sources = append(sources, cronjob.LocalContextSource{Dir: cfg.Context.Dir})
	}
	if cfg.Context.S3Bucket != "" {
		s3src, err := cronjob.NewS3ContextSource(ctx, cfg.Context.S3Bucket, cfg.Context.S3Prefix, cfg.Context.S3Region)
		if err != nil {
			return "", fmt.Errorf("build S3 context source: %w", err)
		}
		sources = append(sources, s3src)
	}
	if len(sources) == 0 {
		return "", nil
	}
	return cronjob.BuildWorkspaceContext(ctx, sources...)
}
