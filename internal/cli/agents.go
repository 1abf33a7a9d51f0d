package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/config"
	"github.com/Dicklesworthstone/botmaster/internal/output"
)

func newAddCmd() *cobra.Command {
	var name string
	var disabled, goHome bool

	cmd := &cobra.Command{
		Use:   "add <host:port>",
		Short: "Register a bot agent",
		Long: `Register a bot agent in the fleet config.

Examples:
  botmaster add 10.0.0.5:7011 --name miner
  botmaster add 10.0.0.6:7011 --gohome          # go home after automated stops`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args[0], name, !disabled, goHome)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name for the agent")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "register without enabling")
	cmd.Flags().BoolVar(&goHome, "gohome", false, "send the bot home after automated stops")

	return cmd
}

func runAdd(ref, name string, enabled, goHome bool) error {
	id, err := agent.ParseAgentID(ref)
	if err != nil {
		return err
	}

	agents, err := cfg.ToAgents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		if a.ID == id {
			return fmt.Errorf("agent %s is already registered", id)
		}
	}

	a := agent.Agent{
		ID:                 id,
		Name:               name,
		Enabled:            enabled,
		GoHomeAfterSession: goHome,
		Automation:         agent.DefaultAutomationConfig(),
	}
	if err := a.Validate(); err != nil {
		return err
	}

	agents = append(agents, a)
	cfg.SetAgents(agents)
	if err := config.Save(cfgFile, cfg); err != nil {
		return err
	}

	f := newFormatter()
	if f.JSONMode() {
		return f.JSON(map[string]any{"added": id.String(), "name": name, "enabled": enabled})
	}
	f.Successf("Added %s", a.DisplayName())
	return nil
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <agent>",
		Aliases: []string{"rm"},
		Short:   "Remove an agent from the fleet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAgent(args[0])
			if err != nil {
				return err
			}

			agents, err := cfg.ToAgents()
			if err != nil {
				return err
			}
			kept := agents[:0]
			for _, cur := range agents {
				if cur.ID != a.ID {
					kept = append(kept, cur)
				}
			}
			cfg.SetAgents(kept)
			if err := config.Save(cfgFile, cfg); err != nil {
				return err
			}

			f := newFormatter()
			if f.JSONMode() {
				return f.JSON(map[string]any{"removed": a.ID.String()})
			}
			f.Successf("Removed %s", a.DisplayName())
			return nil
		},
	}
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered agents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := cfg.ToAgents()
			if err != nil {
				return err
			}

			f := newFormatter()
			if f.JSONMode() {
				entries := make([]map[string]any, 0, len(agents))
				for _, a := range agents {
					entries = append(entries, map[string]any{
						"agent":   a.ID.String(),
						"name":    a.Name,
						"enabled": a.Enabled,
						"gohome":  a.GoHomeAfterSession,
						"mode":    a.Automation.Mode.String(),
					})
				}
				return f.JSON(entries)
			}

			if len(agents) == 0 {
				fmt.Println("No agents registered. Use 'botmaster add <host:port>'.")
				return nil
			}
			table := output.NewTable(f.Writer(), "AGENT", "NAME", "ENABLED", "MODE", "GOHOME")
			for _, a := range agents {
				table.AddRow(
					a.ID.String(),
					a.Name,
					fmt.Sprintf("%t", a.Enabled),
					describeAutomation(a.Automation),
					fmt.Sprintf("%t", a.GoHomeAfterSession),
				)
			}
			table.Render()
			return nil
		},
	}
	return cmd
}

func describeAutomation(cfg agent.AutomationConfig) string {
	switch cfg.Mode {
	case agent.ModeTimer:
		return fmt.Sprintf("timer %s", cfg.TimerDuration())
	case agent.ModeSchedule:
		return fmt.Sprintf("schedule %s-%s", cfg.ScheduleStart, cfg.ScheduleEnd)
	default:
		return "manual"
	}
}
