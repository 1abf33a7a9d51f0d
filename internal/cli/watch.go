package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/automation"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/config"
	"github.com/Dicklesworthstone/botmaster/internal/dispatch"
	"github.com/Dicklesworthstone/botmaster/internal/events"
	"github.com/Dicklesworthstone/botmaster/internal/notify"
	"github.com/Dicklesworthstone/botmaster/internal/poller"
	"github.com/Dicklesworthstone/botmaster/internal/registry"
	"github.com/Dicklesworthstone/botmaster/internal/tui"
	"github.com/Dicklesworthstone/botmaster/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Supervise the fleet continuously",
		Long: `Supervise the fleet continuously: poll every agent, drive timers and
schedules, and deliver webhook notifications. By default an interactive
dashboard is shown; --headless runs the same loop with log output only,
for running under a process supervisor.

Config edits are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), headless)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "run without the dashboard")

	return cmd
}

func runWatch(parent context.Context, headless bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agents, err := cfg.ToAgents()
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := reg.ReplaceAll(agents); err != nil {
		return err
	}

	bus := events.NewEventBus()
	emitter := events.NewEventEmitter(bus, 256)
	emitter.Start()
	defer emitter.Close()

	c := client.New(client.WithTimeout(cfg.RequestTimeout()))
	p := poller.New(c, cfg.RequestTimeout(), poller.DefaultConcurrency)
	disp := dispatch.New(c, emitter)
	defer disp.Shutdown()

	sup := automation.NewSupervisor(disp, emitter, func() client.OrderRef {
		return client.OrderRef{Path: cfg.DefaultOrderPath}
	})
	reg.SetRemoveHook(sup.RemoveAgent)

	// Schedules are live as soon as the loop starts; timers are armed
	// explicitly because arming one starts a run.
	for _, a := range reg.Enabled() {
		if a.Automation.Mode == agent.ModeSchedule {
			if err := sup.ActivateSchedule(a); err != nil {
				slog.Warn("activating schedule", "agent", a.ID, "error", err)
			}
		}
	}

	ctrl := automation.NewController(reg, p, sup, emitter,
		automation.WithInterval(cfg.PollInterval()))

	stopConfigWatch, err := watchConfigFile(reg, sup, emitter, ctrl)
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer stopConfigWatch()
	}

	var bridgeMu sync.Mutex
	var bridge *notify.Bridge
	stopWebhookWatch, err := config.WatchWebhooks("", func(cfgs []config.WebhookConfig) {
		bridgeMu.Lock()
		defer bridgeMu.Unlock()
		if bridge == nil {
			bridge = notify.StartBridge(bus, cfgs)
			return
		}
		bridge.UpdateSinks(cfgs)
	})
	if err != nil {
		slog.Warn("webhook watcher disabled", "error", err)
	} else {
		defer stopWebhookWatch()
	}
	defer func() {
		bridgeMu.Lock()
		b := bridge
		bridgeMu.Unlock()
		b.Close()
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- ctrl.Run(loopCtx) }()

	if headless {
		return runHeadless(ctx, bus, loopDone)
	}

	err = tui.Run(ctx, tui.Options{
		Registry:   reg,
		Controller: ctrl,
		Supervisor: sup,
		Dispatcher: disp,
		Bus:        bus,
		Order: func() client.OrderRef {
			return client.OrderRef{Path: cfg.DefaultOrderPath}
		},
		Version: Version,
	})
	cancelLoop()
	<-loopDone
	return err
}

// watchConfigFile reloads the fleet on edits to the config file. The watch is
// on the directory so editors that replace the file (rename-over) still
// trigger it.
func watchConfigFile(reg *registry.Registry, sup *automation.Supervisor, emitter *events.EventEmitter, ctrl *automation.Controller) (func(), error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := watcher.New(func(evs []watcher.Event) {
		touched := false
		for _, ev := range evs {
			if filepath.Clean(ev.Path) == abs {
				touched = true
				break
			}
		}
		if !touched {
			return
		}
		if err := reloadFleet(abs, reg, sup, emitter); err != nil {
			slog.Error("config reload failed, keeping previous fleet", "error", err)
			return
		}
		ctrl.RefreshNow()
	})
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return func() { w.Close() }, nil
}

func reloadFleet(path string, reg *registry.Registry, sup *automation.Supervisor, emitter *events.EventEmitter) error {
	next, err := config.Load(path)
	if err != nil {
		return err
	}
	agents, err := next.ToAgents()
	if err != nil {
		return err
	}

	prior := reg.List()
	before := make(map[agent.AgentID]bool, len(prior))
	for _, a := range prior {
		before[a.ID] = true
	}
	after := make(map[agent.AgentID]bool, len(agents))
	for _, a := range agents {
		after[a.ID] = true
	}

	if err := reg.ReplaceAll(agents); err != nil {
		return err
	}
	cfg = next

	for _, a := range prior {
		if !after[a.ID] {
			emitter.Emit(events.NewAgentRemoved(a.ID, a.Name))
		}
	}

	for _, a := range agents {
		if !before[a.ID] {
			emitter.Emit(events.NewAgentAdded(a.ID, a.Name))
		}
		if a.Enabled && a.Automation.Mode == agent.ModeSchedule {
			if err := sup.ActivateSchedule(a); err != nil {
				slog.Warn("activating schedule", "agent", a.ID, "error", err)
			}
			continue
		}
		sup.OnConfigChanged(a)
	}
	emitter.Emit(events.NewConfigReloaded(len(agents)))
	return nil
}

// runHeadless follows the supervision loop with structured log output in
// place of the dashboard.
func runHeadless(ctx context.Context, bus *events.EventBus, loopDone <-chan error) error {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()

	go func() {
		for ev := range ch {
			logBusEvent(ev)
		}
	}()

	slog.Info("watch started", "mode", "headless", "interval", cfg.PollInterval())
	if err := <-loopDone; err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("watch stopped")
	return nil
}

func logBusEvent(ev events.BusEvent) {
	switch e := ev.(type) {
	case events.StatusUpdated:
		// Per-tick noise at info level would drown everything else.
		slog.Debug("status", "agent", e.AgentID, "state", e.Status.StateLabel())
	case events.ActionCompleted:
		if e.Success {
			slog.Info("action completed", "agent", e.AgentID, "action", e.Action, "message", e.Message)
		} else {
			slog.Warn("action failed", "agent", e.AgentID, "action", e.Action, "message", e.Message)
		}
	case events.TimerArmed:
		slog.Info("timer armed", "agent", e.AgentID, "end", e.EndTime)
	case events.TimerExpired:
		slog.Info("timer expired", "agent", e.AgentID)
	case events.ScheduleActivated:
		slog.Info("schedule active", "agent", e.AgentID, "start", e.Start, "end", e.End)
	case events.ScheduleTransition:
		slog.Info("schedule transition", "agent", e.AgentID, "action", e.Action)
	case events.AgentAdded:
		slog.Info("agent added", "agent", e.AgentID, "name", e.Name)
	case events.AgentRemoved:
		slog.Info("agent removed", "agent", e.AgentID, "name", e.Name)
	case events.ConfigReloaded:
		slog.Info("config reloaded", "agents", e.AgentCount)
	default:
		slog.Debug("event", "type", ev.EventType())
	}
}
