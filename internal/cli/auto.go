package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

func newAutoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Configure per-agent automation",
		Long: `Configure per-agent automation.

Automation settings are stored in the fleet config; the running 'watch'
session picks them up on its next config reload. Timers are armed from
the watch dashboard, not from here.`,
	}

	cmd.AddCommand(newAutoTimerCmd())
	cmd.AddCommand(newAutoScheduleCmd())
	cmd.AddCommand(newAutoOffCmd())
	cmd.AddCommand(newAutoShowCmd())

	return cmd
}

func newAutoTimerCmd() *cobra.Command {
	var hours, minutes int
	var useResume bool

	cmd := &cobra.Command{
		Use:   "timer <agent>",
		Short: "Set an agent to timer mode",
		Long: `Set an agent to timer mode. An armed timer starts a run immediately and
stops the agent (then sends it home) when the countdown ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAgent(args[0])
			if err != nil {
				return err
			}
			if err := updateAgentConfig(a.ID, func(cur *agent.Agent) {
				cur.Automation.Mode = agent.ModeTimer
				cur.Automation.TimerHours = hours
				cur.Automation.TimerMinutes = minutes
				cur.Automation.UseResume = useResume
			}); err != nil {
				return err
			}
			f := newFormatter()
			if f.JSONMode() {
				return f.JSON(map[string]any{"agent": a.ID.String(), "mode": "timer", "hours": hours, "minutes": minutes, "resume": useResume})
			}
			f.Successf("%s set to timer mode (%dh %dm)", a.DisplayName(), hours, minutes)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "timer hours")
	cmd.Flags().IntVar(&minutes, "minutes", 30, "timer minutes")
	cmd.Flags().BoolVar(&useResume, "resume", false, "resume the previous session instead of starting fresh")

	return cmd
}

func newAutoScheduleCmd() *cobra.Command {
	var start, end string
	var useResume bool

	cmd := &cobra.Command{
		Use:   "schedule <agent>",
		Short: "Set an agent to daily schedule mode",
		Long: `Set an agent to daily schedule mode. Inside the window the agent is started;
outside it the agent is stopped and sent home. A window that ends before it
starts wraps past midnight (22:00-06:00 runs overnight).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAgent(args[0])
			if err != nil {
				return err
			}
			startAt, err := agent.ParseTimeOfDay(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endAt, err := agent.ParseTimeOfDay(end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			if err := updateAgentConfig(a.ID, func(cur *agent.Agent) {
				cur.Automation.Mode = agent.ModeSchedule
				cur.Automation.ScheduleStart = startAt
				cur.Automation.ScheduleEnd = endAt
				cur.Automation.UseResume = useResume
			}); err != nil {
				return err
			}
			f := newFormatter()
			if f.JSONMode() {
				return f.JSON(map[string]any{"agent": a.ID.String(), "mode": "schedule", "start": startAt.String(), "end": endAt.String(), "resume": useResume})
			}
			f.Successf("%s set to schedule mode (%s-%s)", a.DisplayName(), startAt, endAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "08:00", "window start (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "22:00", "window end (HH:MM)")
	cmd.Flags().BoolVar(&useResume, "resume", false, "resume the previous session instead of starting fresh")

	return cmd
}

func newAutoOffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "off <agent>",
		Short: "Return an agent to manual control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAgent(args[0])
			if err != nil {
				return err
			}
			if err := updateAgentConfig(a.ID, func(cur *agent.Agent) {
				cur.Automation.Mode = agent.ModeManual
			}); err != nil {
				return err
			}
			f := newFormatter()
			if f.JSONMode() {
				return f.JSON(map[string]any{"agent": a.ID.String(), "mode": "manual"})
			}
			f.Successf("%s set to manual control", a.DisplayName())
			return nil
		},
	}
	return cmd
}

func newAutoShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <agent>",
		Short: "Show an agent's automation settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAgent(args[0])
			if err != nil {
				return err
			}
			auto := a.Automation
			f := newFormatter()
			if f.JSONMode() {
				return f.JSON(map[string]any{
					"agent":   a.ID.String(),
					"mode":    auto.Mode.String(),
					"hours":   auto.TimerHours,
					"minutes": auto.TimerMinutes,
					"start":   auto.ScheduleStart.String(),
					"end":     auto.ScheduleEnd.String(),
					"resume":  auto.UseResume,
				})
			}
			f.Textln("%s: %s", a.DisplayName(), describeAutomation(auto))
			if auto.Mode != agent.ModeManual {
				f.Textln("  resume previous session: %t", auto.UseResume)
			}
			return nil
		},
	}
	return cmd
}
