package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/wonop-io/wonopcore/internal/agent/runner"
	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/config"
	"github.com/wonop-io/wonopcore/internal/filetime"
	"github.com/wonop-io/wonopcore/internal/model"
	"github.com/wonop-io/wonopcore/internal/obslog"
	"github.com/wonop-io/wonopcore/internal/permission"
	"github.com/wonop-io/wonopcore/internal/provider"
	"github.com/wonop-io/wonopcore/internal/sandbox"
	"github.com/wonop-io/wonopcore/internal/store"
	"github.com/wonop-io/wonopcore/internal/toolreg"
	"github.com/wonop-io/wonopcore/internal/wsgateway"
)

var (
	serveDir string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session core: WebSocket gateway, REPL stdin, and the periodic maintenance sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if serveDir != "" {
				cfg.Storage.Root = serveDir
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&serveDir, "dir", "", "override the storage root from config")
	return cmd
}

// instance bundles one project/session's worth of wired components,
// mirroring §9's "one InstanceRegistry mapping directory -> Instance"
// guidance narrowed, for this single-process CLI, to exactly one
// instance rooted at the process's storage root.
type instance struct {
	id       string
	bus      *bus.Bus
	sessions *store.SessionStore
	runner   *runner.Runner
	session  *model.Session
}

func (in *instance) Snapshot() wsgateway.StateSnapshot {
	ids, _ := in.sessions.ListSessions(in.session.ProjectID)
	oldest, _ := in.bus.OldestSeq()
	return wsgateway.StateSnapshot{
		Instance:       in.id,
		ActiveSessions: ids,
		CurrentSeq:     in.bus.CurrentSeq(),
		OldestSeq:      oldest,
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := obslog.Default()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()
	otel.SetTracerProvider(tp)

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return fmt.Errorf("serve: creating storage root %s: %w", cfg.Storage.Root, err)
	}

	kv, err := store.NewJSONStore(filepath.Join(cfg.Storage.Root, "data"))
	if err != nil {
		return fmt.Errorf("serve: opening store: %w", err)
	}
	sessions := store.NewSessionStore(kv)
	snapshots, err := store.NewSnapshotStore(kv, filepath.Join(cfg.Storage.Root, "blobs"))
	if err != nil {
		return fmt.Errorf("serve: opening snapshot store: %w", err)
	}
	todos := store.NewMemoryStore()

	b := bus.NewWithReplaySize(cfg.Storage.ReplayBufSize)

	perm := permission.NewManager(b)
	perm.SetAllowAllInSandbox(cfg.Permission.AllowAllInSandbox)
	if err := config.LoadPermissionRules(cfg.Permission.RulesFile, perm); err != nil {
		return err
	}

	var sbox sandbox.SandboxRuntime
	root, _ := os.Getwd()
	switch cfg.Sandbox.Driver {
	case "docker":
		sbox = sandbox.NewDocker(model.NewSessionID(), cfg.Sandbox.Image, root, "/workspace", false)
	default:
		sbox = sandbox.NewPassthrough(model.NewSessionID(), root)
	}

	registry := toolreg.NewRegistry()
	for _, t := range []toolreg.Tool{
		toolreg.ReadTool{},
		toolreg.WriteTool{},
		toolreg.EditTool{},
		toolreg.MultiEditTool{},
		toolreg.PatchTool{},
		toolreg.ListTool{},
		toolreg.GlobTool{},
		toolreg.GrepTool{},
		toolreg.BashTool{},
		toolreg.TodoWriteTool{},
		toolreg.EnterPlanModeTool{},
		toolreg.ExitPlanModeTool{BuildAgentID: runner.AgentMain},
		&toolreg.BatchTool{Registry: registry},
	} {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("serve: registering tool %s: %w", t.ID(), err)
		}
	}

	llm, err := buildProvider(cfg.Provider)
	if err != nil {
		return err
	}

	ft := filetime.NewState()
	if watcher, err := filetime.NewWatcher(ft, logger); err != nil {
		logger.Warn("serve: filetime watcher unavailable", "err", err)
	} else {
		if err := watcher.WatchDir(root); err != nil {
			logger.Warn("serve: watching working directory", "err", err)
		}
		defer func() { _ = watcher.Close() }()
	}

	r, err := runner.NewRunner(sessions, snapshots, b, perm, registry, ft, sbox, todos, llm, cfg.Provider.RateCard)
	if err != nil {
		return fmt.Errorf("serve: building runner: %w", err)
	}

	proj := model.NewProjectID()
	sess := model.NewSession(proj, root, time.Now())
	if err := sessions.PutSession(sess); err != nil {
		return fmt.Errorf("serve: persisting initial session: %w", err)
	}

	in := &instance{id: model.NewSessionID(), bus: b, sessions: sessions, runner: r, session: sess}

	actions := make(chan runner.AppAction, 8)
	updates := r.Run(ctx, sess, actions)
	go logUpdates(logger, updates)

	gw := wsgateway.New(b, in, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	go func() {
		logger.Info("wsgateway listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", "err", err)
		}
	}()

	sweepStop, err := startSweep(cfg.Sweep, sessions, snapshots, b, logger)
	if err != nil {
		return err
	}
	defer sweepStop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readREPL(ctx, actions, logger)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	close(actions)
	return nil
}

func buildProvider(cfg config.ProviderConfig) (provider.LLMProvider, error) {
	switch cfg.Kind {
	case "anthropic":
		return provider.NewAnthropic(provider.AnthropicConfig{APIKey: cfg.APIKey, DefaultModel: cfg.Model})
	default:
		return provider.NewMock(), nil
	}
}

// readREPL reads newline-delimited prompts from stdin and feeds them to
// the Runner as SendPrompt actions, the simplest possible driver for this
// CLI entrypoint; the WebSocket gateway remains read-only per §6.
func readREPL(ctx context.Context, actions chan<- runner.AppAction, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case actions <- runner.SendPrompt(line):
		case <-ctx.Done():
			return
		}
	}
}

func logUpdates(logger *slog.Logger, updates <-chan runner.AppUpdate) {
	for u := range updates {
		switch u.Kind {
		case runner.UpdateError:
			logger.Error("runner error", "message", u.ErrMessage)
		case runner.UpdateCompleted:
			logger.Info("turn completed", "text", u.Text)
		}
	}
}
