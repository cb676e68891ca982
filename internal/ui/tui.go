// ABOUTME: TUI initialization and control
// ABOUTME: Runs the monitor until the user quits or the context ends
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the monitor. It returns nil when the user quits or ctx ends.
func Run(ctx context.Context, name, addr string, snapshot SnapshotFunc) error {
	p := tea.NewProgram(NewModel(name, addr, snapshot), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
