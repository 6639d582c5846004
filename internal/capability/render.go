package capability

import "github.com/roach88/cruxgo/internal/command"

// RenderOperation asks the shell to redraw the view. It is a notification:
// the shell never resolves it.
type RenderOperation struct{}

// OperationName implements command.Operation.
func (RenderOperation) OperationName() string { return "render" }

// Render returns a command notifying the shell to redraw.
func Render[Eff, Ev any](lift func(*command.Request[RenderOperation, struct{}]) Eff) *command.Command[Eff, Ev] {
	return command.NotifyShell[Eff, Ev](RenderOperation{}, lift)
}
