package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/output"
	"github.com/Dicklesworthstone/botmaster/internal/poller"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [agent]",
		Short: "Show live status for agents",
		Long: `Show live status for one agent, or the whole fleet when no agent is given.

Each agent is queried over HTTP; unreachable agents are reported, not skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := cfg.ToAgents()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				a, err := resolveAgent(args[0])
				if err != nil {
					return err
				}
				agents = []agent.Agent{a}
			}
			if len(agents) == 0 {
				return fmt.Errorf("no agents registered")
			}
			return runStatus(cmd.Context(), agents)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, agents []agent.Agent) error {
	c := newClient()
	p := poller.New(c, cfg.RequestTimeout(), poller.DefaultConcurrency)
	snap := p.PollAll(ctx, agents)

	f := newFormatter()
	if f.JSONMode() {
		entries := make([]map[string]any, 0, len(agents))
		for _, a := range agents {
			st := snap[a.ID]
			entry := map[string]any{
				"agent":     a.ID.String(),
				"name":      a.Name,
				"reachable": st.Reachable,
				"state":     st.StateLabel(),
			}
			if st.Reachable {
				entry["executing"] = st.IsExecuting
				entry["file"] = st.CurrentFile
				entry["runtime"] = st.RuntimeSeconds
			} else {
				entry["error"] = st.ErrorMsg
			}
			entries = append(entries, entry)
		}
		return f.JSON(entries)
	}

	// Give the file column whatever width the terminal leaves over.
	fileWidth := 40
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 80 {
		fileWidth = w - 60
	}

	table := output.NewTable(f.Writer(), "AGENT", "NAME", "STATE", "FILE", "RUNTIME")
	for _, a := range agents {
		st := snap[a.ID]
		file, runtime := "-", "-"
		if st.Reachable {
			file = output.Truncate(st.CurrentFile, fileWidth)
			runtime = agent.FormatRuntime(st.RuntimeSeconds)
		}
		table.AddRow(a.ID.String(), a.Name, st.StateLabel(), file, runtime)
	}
	table.Render()
	return nil
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health [agent]",
		Short: "Check agent reachability",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := cfg.ToAgents()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				a, err := resolveAgent(args[0])
				if err != nil {
					return err
				}
				agents = []agent.Agent{a}
			}
			if len(agents) == 0 {
				return fmt.Errorf("no agents registered")
			}

			c := newClient()
			f := newFormatter()
			healthy := 0
			results := make([]map[string]any, 0, len(agents))
			for _, a := range agents {
				ok := c.Health(cmd.Context(), a.ID)
				if ok {
					healthy++
				}
				if f.JSONMode() {
					results = append(results, map[string]any{"agent": a.ID.String(), "healthy": ok})
					continue
				}
				mark := "✗"
				if ok {
					mark = "✓"
				}
				f.Textln("%s %s", mark, a.DisplayName())
			}
			if f.JSONMode() {
				return f.JSON(results)
			}
			f.Textln("%d/%d healthy", healthy, len(agents))
			if healthy < len(agents) {
				return fmt.Errorf("%s unreachable", output.CountStr(len(agents)-healthy, "agent", "agents"))
			}
			return nil
		},
	}
	return cmd
}

func newRunCmd() *cobra.Command {
	var orderPath, orderJSON string
	var all bool

	cmd := &cobra.Command{
		Use:   "run [agent]",
		Short: "Start an order on an agent",
		Long: `Start an order on an agent, or on every enabled agent with --all.

The order is taken from --order (a path on the agent's machine), --order-json
(inline JSON), or the default_order_path from config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := orderRef(orderPath, orderJSON)
			if err != nil {
				return err
			}
			agents, err := targetAgents(args, all)
			if err != nil {
				return err
			}
			return forEachAgent(cmd.Context(), agents, "run", func(ctx context.Context, c *client.Client, id agent.AgentID) (bool, string) {
				return c.Run(ctx, id, order)
			})
		},
	}

	cmd.Flags().StringVar(&orderPath, "order", "", "path to the order file on the agent's machine")
	cmd.Flags().StringVar(&orderJSON, "order-json", "", "inline order JSON")
	cmd.Flags().BoolVar(&all, "all", false, "target every enabled agent")

	return cmd
}

func newResumeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "resume [agent]",
		Short: "Resume an agent's previous session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := targetAgents(args, all)
			if err != nil {
				return err
			}
			return forEachAgent(cmd.Context(), agents, "resume", func(ctx context.Context, c *client.Client, id agent.AgentID) (bool, string) {
				return c.Resume(ctx, id)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "target every enabled agent")
	return cmd
}

func newStopCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stop [agent]",
		Short: "Stop an agent gently",
		Long:  "Ask an agent to finish its current step and stop. Does not send the bot home.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := targetAgents(args, all)
			if err != nil {
				return err
			}
			return forEachAgent(cmd.Context(), agents, "stop", func(ctx context.Context, c *client.Client, id agent.AgentID) (bool, string) {
				return c.StopGently(ctx, id)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "target every enabled agent")
	return cmd
}

func newGoHomeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "gohome [agent]",
		Short: "Send a stopped bot to its home point",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := targetAgents(args, all)
			if err != nil {
				return err
			}
			return forEachAgent(cmd.Context(), agents, "gohome", func(ctx context.Context, c *client.Client, id agent.AgentID) (bool, string) {
				return c.GoHome(ctx, id)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "target every enabled agent")
	return cmd
}

// forEachAgent runs one control action against each target and reports
// per-agent results. A failure on one agent does not skip the rest.
func forEachAgent(ctx context.Context, agents []agent.Agent, action string, fn func(context.Context, *client.Client, agent.AgentID) (bool, string)) error {
	c := newClient()
	f := newFormatter()
	failed := 0
	results := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		ok, msg := fn(ctx, c, a.ID)
		if !ok {
			failed++
		}
		if f.JSONMode() {
			results = append(results, map[string]any{
				"agent":   a.ID.String(),
				"action":  action,
				"success": ok,
				"message": msg,
			})
			continue
		}
		if ok {
			f.Successf("%s %s", a.DisplayName(), msg)
		} else {
			f.Warningf("%s %s", a.DisplayName(), msg)
		}
	}
	if f.JSONMode() {
		if err := f.JSON(results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%s failed on %d of %d agents", action, failed, len(agents))
	}
	return nil
}
