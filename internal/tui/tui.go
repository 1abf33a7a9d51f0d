// Package tui provides the interactive fleet dashboard shown by watch.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/Dicklesworthstone/botmaster/internal/automation"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/dispatch"
	"github.com/Dicklesworthstone/botmaster/internal/events"
	"github.com/Dicklesworthstone/botmaster/internal/registry"
)

// Options wires the dashboard to the running supervision loop. All fields are
// required except Version.
type Options struct {
	Registry   *registry.Registry
	Controller *automation.Controller
	Supervisor *automation.Supervisor
	Dispatcher *dispatch.Dispatcher
	Bus        *events.EventBus
	Order      func() client.OrderRef
	Version    string
}

// Run shows the dashboard until the user quits or ctx is canceled.
func Run(ctx context.Context, opts Options) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("stdout is not a terminal; use --headless")
	}

	ch, unsubscribe := opts.Bus.Subscribe(256)
	defer unsubscribe()

	m := newModel(opts, ch)
	m.colored = termenv.ColorProfile() != termenv.Ascii

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		// Signal-driven shutdown is a clean exit, not a failure.
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
