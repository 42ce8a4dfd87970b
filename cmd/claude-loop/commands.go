package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/backoff"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/checkpoint"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/convergence"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/council"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/loop"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/notify"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/observer"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/schedule"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/taskstore"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/vcs"
	"github.com/hochfrequenz/claude-loop-orchestrator/tui"
	"github.com/hochfrequenz/claude-loop-orchestrator/web/api"
)

var (
	runPerpetual     bool
	runMaxIterations int
	runStreams       int
	runKeepWorktrees bool
	addPriority      string
	addDescription   string
	listQueue        string
	servePort        int
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the iteration loop until a terminal state",
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runPerpetual, "perpetual", false, "never stop on completion signals")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "override the iteration budget")
	runCmd.Flags().IntVar(&runStreams, "streams", 0, "number of parallel work streams")
	runCmd.Flags().BoolVar(&runKeepWorktrees, "keep-worktrees", false, "leave stream worktrees in place")
	rootCmd.AddCommand(runCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Clear a stop request and continue from the checkpoint",
		RunE:  runResume,
	}
	rootCmd.AddCommand(resumeCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint, queues, and recent runs",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the loop after the current iteration",
		RunE:  runPause,
	}
	rootCmd.AddCommand(pauseCmd)

	unpauseCmd := &cobra.Command{
		Use:   "unpause",
		Short: "Clear a pause request",
		RunE:  runUnpause,
	}
	rootCmd.AddCommand(unpauseCmd)

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Request a graceful stop after the current iteration",
		RunE:  runStop,
	}
	rootCmd.AddCommand(stopCmd)

	councilCmd := &cobra.Command{
		Use:   "council",
		Short: "Run one completion council round and print the verdict",
		RunE:  runCouncil,
	}
	rootCmd.AddCommand(councilCmd)

	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage the task queues",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE:  runTasksList,
	}
	listCmd.Flags().StringVar(&listQueue, "queue", "", "filter by queue")
	tasksCmd.AddCommand(listCmd)
	addCmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a pending task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTasksAdd,
	}
	addCmd.Flags().StringVar(&addPriority, "priority", "normal", "task priority (high, normal, low)")
	addCmd.Flags().StringVar(&addDescription, "description", "", "task description")
	tasksCmd.AddCommand(addCmd)
	rootCmd.AddCommand(tasksCmd)

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the TUI dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status API and websocket server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func workDir(cfg *config.Config) string {
	if cfg.General.ProjectRoot != "" {
		return cfg.General.ProjectRoot
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func openTaskStore(cfg *config.Config) (*taskstore.Store, error) {
	return taskstore.New(filepath.Join(cfg.General.StateDir, "tasks"))
}

func buildExecutor(cfg *config.Config) executor.Executor {
	exec := executor.ForProvider(cfg.Executor.Provider)
	if cfg.Executor.Binary != "" {
		switch e := exec.(type) {
		case *executor.ClaudeExecutor:
			e.Binary = cfg.Executor.Binary
		case *executor.CodexExecutor:
			e.Binary = cfg.Executor.Binary
		case *executor.GeminiExecutor:
			e.Binary = cfg.Executor.Binary
		}
	}
	return exec
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var channels notify.Fanout
	if cfg.Notifications.Desktop {
		channels = append(channels, notify.Desktop{})
	}
	if cfg.Notifications.SlackWebhook != "" {
		channels = append(channels, notify.NewSlackWebhook(cfg.Notifications.SlackWebhook))
	}
	if len(channels) == 0 {
		return notify.Discard{}
	}
	return channels
}

func buildCouncil(cfg *config.Config, exec executor.Executor, dir, roundsDir string) *council.Council {
	return council.New(council.Config{
		Size:             cfg.Council.Size,
		BlockingSeverity: domain.Severity(cfg.Council.BlockingSeverity),
		RoundsDir:        roundsDir,
	}, &council.AgentEvaluator{Executor: exec, WorkDir: dir})
}

// waitForWindow blocks until a schedule window is open. With no windows
// configured it returns immediately.
func waitForWindow(ctx context.Context, cfg *config.Config, signals *loop.Signals) error {
	if len(cfg.Schedule.Windows) == 0 {
		return nil
	}
	windows := make([]schedule.Window, len(cfg.Schedule.Windows))
	for i, w := range cfg.Schedule.Windows {
		windows[i] = schedule.Window{Cron: w.Cron, Duration: w.Duration()}
	}
	sched, err := schedule.New(windows)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	for !sched.InWindow() {
		next, ok := sched.NextOpen()
		if !ok {
			return fmt.Errorf("no schedule window opens within a year")
		}
		fmt.Printf("Outside schedule window, next opens %s\n", humanize.Time(next))
		if !signals.Wait(ctx, time.Until(next)) {
			return ctx.Err()
		}
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return executeLoop(cfg, false)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return executeLoop(cfg, true)
}

func executeLoop(cfg *config.Config, clearStop bool) error {
	if runPerpetual {
		cfg.Loop.Perpetual = true
	}
	if runMaxIterations > 0 {
		cfg.Loop.MaxIterations = runMaxIterations
	}
	if runStreams > 0 {
		cfg.Loop.ParallelStreams = runStreams
	}

	if err := os.MkdirAll(filepath.Join(cfg.General.StateDir, "logs"), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0755); err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	signals, err := loop.NewSignals(cfg.General.StateDir)
	if err != nil {
		return err
	}
	signals.Start(ctx)
	defer signals.Stop()

	if clearStop {
		if err := signals.ClearStop(); err != nil {
			return err
		}
	}

	if err := waitForWindow(ctx, cfg, signals); err != nil {
		return err
	}

	tasks, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	hist, err := history.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer hist.Close()

	exec := buildExecutor(cfg)
	notifier := buildNotifier(cfg)
	runID := uuid.NewString()

	// Each parallel stream gets state scoped to its own worktree; the
	// single-stream case shares the global state dir and task queues.
	factory := func(streamID, dir string) (*loop.Controller, error) {
		stateDir := cfg.General.StateDir
		streamTasks := tasks
		if dir != workDir(cfg) {
			stateDir = filepath.Join(dir, ".claude-loop")
			if err := os.MkdirAll(filepath.Join(stateDir, "logs"), 0755); err != nil {
				return nil, err
			}
			st, err := taskstore.New(filepath.Join(stateDir, "tasks"))
			if err != nil {
				return nil, err
			}
			streamTasks = st
		}
		repo := vcs.New(dir)
		est := backoff.New(
			time.Duration(cfg.Backoff.BaseWaitSeconds)*time.Second,
			time.Duration(cfg.Backoff.MaxWaitSeconds)*time.Second,
			cfg.Backoff.ProviderRPM,
		)
		return loop.New(loop.Config{
			RunID:                      runID,
			StreamID:                   streamID,
			WorkDir:                    dir,
			MaxIterations:              cfg.Loop.MaxIterations,
			MaxRetries:                 cfg.Loop.MaxRetries,
			CouncilInterval:            cfg.Council.CheckInterval,
			MinIterationsBeforeCouncil: cfg.Council.MinIterations,
			Perpetual:                  cfg.Loop.Perpetual,
			CompletionPromise:          cfg.Loop.CompletionPromise,
			PRDPath:                    cfg.General.PRDPath,
			TestResultPath:             cfg.General.TestResults,
			LogPath:                    filepath.Join(stateDir, "logs", streamID+".log"),
			TaskRetryCeiling:           cfg.Loop.TaskRetryCeiling,
		}, loop.Deps{
			Executor:    exec,
			Checkpoints: checkpoint.New(filepath.Join(stateDir, "checkpoint-"+streamID+".json")),
			Tasks:       streamTasks,
			Detector:    convergence.New(cfg.Loop.StagnationLimit, 0),
			Repo:        repo,
			Council:     buildCouncil(cfg, exec, dir, filepath.Join(stateDir, "rounds")),
			Backoff:     est,
			History:     hist,
			Signals:     signals,
			Notifier:    notifier,
			Fingerprint: repo.DiffFingerprint,
		}), nil
	}

	if cfg.Loop.ParallelStreams > 1 {
		maxConcurrent := cfg.Loop.MaxConcurrent
		if !exec.Capabilities().SupportsParallel {
			maxConcurrent = 1
		}
		worktreeRoot := cfg.General.WorktreeDir
		if worktreeRoot == "" {
			worktreeRoot = filepath.Join(cfg.General.StateDir, "worktrees")
		}
		results, err := loop.RunParallel(ctx, loop.ParallelConfig{
			Streams:       cfg.Loop.ParallelStreams,
			MaxConcurrent: maxConcurrent,
			WorktreeRoot:  worktreeRoot,
			KeepWorktrees: runKeepWorktrees,
		}, vcs.New(workDir(cfg)), factory)
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			fmt.Printf("%s: %s\n", r.StreamID, r.Outcome)
			if r.Err != nil || r.Outcome.Failed() {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d streams failed", failed, len(results))
		}
		return nil
	}

	ctrl, err := factory("stream-1", workDir(cfg))
	if err != nil {
		return err
	}
	outcome, err := ctrl.Run(ctx)
	if err != nil && outcome == "" {
		return err
	}
	fmt.Printf("Run finished: %s\n", outcome)
	if outcome.Failed() {
		return fmt.Errorf("run failed: %s", outcome)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	state := checkpoint.New(filepath.Join(cfg.General.StateDir, "checkpoint-stream-1.json")).Load()
	fmt.Printf("Checkpoint: iteration %d, retries %d, status %s",
		state.IterationCount, state.RetryCount, state.Status)
	if !state.LastRunAt.IsZero() {
		fmt.Printf(", last run %s", humanize.Time(state.LastRunAt))
	}
	fmt.Println()

	if tasks, err := openTaskStore(cfg); err == nil {
		if counts, err := tasks.Counts(); err == nil {
			fmt.Print("Queues:")
			for _, q := range domain.Queues {
				fmt.Printf(" %s=%d", q, counts[q])
			}
			fmt.Println()
		}
	}

	hist, err := history.New(cfg.General.DatabasePath)
	if err != nil {
		return nil
	}
	defer hist.Close()
	outcomes, err := hist.RecentOutcomes(5)
	if err != nil || len(outcomes) == 0 {
		return nil
	}
	fmt.Println("Recent runs:")
	for _, o := range outcomes {
		fmt.Printf("  %s  %-26s %3d iterations  %s\n",
			o.RunID[:8], o.Outcome, o.Iterations, humanize.Time(o.FinishedAt))
	}
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	return withSignals(func(s *loop.Signals) error {
		if err := s.RequestPause(); err != nil {
			return err
		}
		fmt.Println("Pause requested; the loop holds after the current iteration")
		return nil
	})
}

func runUnpause(cmd *cobra.Command, args []string) error {
	return withSignals(func(s *loop.Signals) error {
		if err := s.ClearPause(); err != nil {
			return err
		}
		fmt.Println("Pause cleared")
		return nil
	})
}

func runStop(cmd *cobra.Command, args []string) error {
	return withSignals(func(s *loop.Signals) error {
		if err := s.RequestStop(); err != nil {
			return err
		}
		fmt.Println("Stop requested; the run ends after the current iteration and stays resumable")
		return nil
	})
}

func withSignals(fn func(*loop.Signals) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.General.StateDir, 0755); err != nil {
		return err
	}
	signals, err := loop.NewSignals(cfg.General.StateDir)
	if err != nil {
		return err
	}
	defer signals.Stop()
	return fn(signals)
}

func runCouncil(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tasks, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	dir := workDir(cfg)
	repo := vcs.New(dir)
	exec := buildExecutor(cfg)

	state := checkpoint.New(filepath.Join(cfg.General.StateDir, "checkpoint-stream-1.json")).Load()
	ev := council.AssembleEvidence(repo, tasks, cfg.General.PRDPath, cfg.General.TestResults, state.IterationCount, 0)

	ctx, cancel := interruptContext()
	defer cancel()

	round, err := buildCouncil(cfg, exec, dir, filepath.Join(cfg.General.StateDir, "rounds")).RunRound(ctx, state.IterationCount, ev)
	if err != nil {
		return err
	}

	fmt.Printf("Verdict: %s (%d/%d approvals, threshold %d)\n",
		round.Verdict, round.ApproveCount, len(round.Votes), round.Threshold)
	for _, vote := range round.Votes {
		fmt.Printf("  %-40s %s", vote.MemberID, vote.Verdict)
		if len(vote.Issues) > 0 {
			fmt.Printf("  (%d issues)", len(vote.Issues))
		}
		fmt.Println()
	}
	if round.AntiSycophancyOverride != nil {
		fmt.Printf("Adversarial re-check: %s\n", round.AntiSycophancyOverride.Verdict)
	}
	return nil
}

func runTasksList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tasks, err := openTaskStore(cfg)
	if err != nil {
		return err
	}

	queues := domain.Queues
	if listQueue != "" {
		queues = []domain.TaskStatus{domain.TaskStatus(listQueue)}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tRETRIES")
	for _, q := range queues {
		list, err := tasks.List(q)
		if err != nil {
			return err
		}
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.ID, t.Title, t.Status, t.Priority, t.RetryCount)
		}
	}
	return w.Flush()
}

func runTasksAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tasks, err := openTaskStore(cfg)
	if err != nil {
		return err
	}

	task := domain.NewTask("T-"+uuid.NewString()[:8], args[0], addDescription)
	task.Priority = domain.Priority(addPriority)
	if err := tasks.Enqueue(task); err != nil {
		return err
	}
	fmt.Printf("Added %s: %s\n", task.ID, task.Title)
	return nil
}

// snapshotSources builds the read-only feeds the TUI and API observe.
func snapshotSources(cfg *config.Config) (observer.Sources, *taskstore.Store, error) {
	tasks, err := openTaskStore(cfg)
	if err != nil {
		return observer.Sources{}, nil, err
	}
	return observer.Sources{
		Checkpoints: checkpoint.New(filepath.Join(cfg.General.StateDir, "checkpoint-stream-1.json")),
		Tasks:       tasks,
	}, tasks, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sources, tasks, err := snapshotSources(cfg)
	if err != nil {
		return err
	}
	obs := observer.New(sources, 0)

	var hist tui.HistorySource
	if h, err := history.New(cfg.General.DatabasePath); err == nil {
		defer h.Close()
		hist = h
	}

	model := tui.NewModel(tui.Sources{
		Snapshots: obs,
		Tasks:     tasks,
		History:   hist,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sources, tasks, err := snapshotSources(cfg)
	if err != nil {
		return err
	}
	obs := observer.New(sources, 0)

	var hist api.History
	if h, err := history.New(cfg.General.DatabasePath); err == nil {
		defer h.Close()
		hist = h
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	ctx, cancel := interruptContext()
	defer cancel()
	obs.Start(ctx)

	server := api.NewServer(tasks, hist, obs, addr)
	fmt.Printf("Serving loop status at http://%s\n", addr)
	return server.Start(ctx)
}
