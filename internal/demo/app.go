// Package demo is a small counter application driven through a Core.
//
// It persists its count through the key-value capability and rolls dice
// through the random stream capability. Shells, the scenario harness and
// the CLI all drive it.
package demo

import (
	"fmt"
	"strconv"

	"github.com/roach88/cruxgo/internal/capability"
	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/core"
)

// CountKey is the key the count is saved under.
const CountKey = "counter"

// EventKind names an event.
type EventKind string

// Events sent by shells.
const (
	EventIncrement   EventKind = "increment"
	EventDecrement   EventKind = "decrement"
	EventReset       EventKind = "reset"
	EventSave        EventKind = "save"
	EventLoad        EventKind = "load"
	EventRoll        EventKind = "roll"
	EventStopRolling EventKind = "stop_rolling"
)

// Events sent by commands.
const (
	EventSaved  EventKind = "saved"
	EventLoaded EventKind = "loaded"
	EventRolled EventKind = "rolled"
)

// Event is the input of the app.
type Event struct {
	Kind   EventKind                 `json:"kind"`
	Amount int                       `json:"amount,omitempty"`
	Result capability.KeyValueResult `json:"result,omitzero"`
}

// Model is the app state.
type Model struct {
	Count  int
	Rolls  []int
	Status string

	rolling   *command.AbortHandle
	rollsLeft int
}

// ViewModel is what shells render.
type ViewModel struct {
	Count   int    `json:"count"`
	Rolls   []int  `json:"rolls"`
	Rolling bool   `json:"rolling"`
	Status  string `json:"status,omitempty"`
}

// Cmd is the command type of the app.
type Cmd = *command.Command[Effect, Event]

// App implements core.App.
type App struct{}

// Update implements core.App.
func (App) Update(ev Event, m *Model) Cmd {
	switch ev.Kind {
	case EventIncrement:
		m.Count += max(ev.Amount, 1)
		return render()

	case EventDecrement:
		m.Count -= max(ev.Amount, 1)
		return render()

	case EventReset:
		m.Count = 0
		m.Rolls = nil
		m.Status = ""
		return render()

	case EventSave:
		m.Status = "saving"
		save := capability.Set[Effect, Event](CountKey, strconv.Itoa(m.Count), liftKeyValue).
			ThenSend(func(r capability.KeyValueResult) Event {
				return Event{Kind: EventSaved, Result: r}
			})
		return command.All(render(), save)

	case EventSaved:
		if ev.Result.Error != "" {
			m.Status = "save failed: " + ev.Result.Error
		} else {
			m.Status = "saved"
		}
		return render()

	case EventLoad:
		return capability.Get[Effect, Event](CountKey, liftKeyValue).
			ThenSend(func(r capability.KeyValueResult) Event {
				return Event{Kind: EventLoaded, Result: r}
			})

	case EventLoaded:
		m.Status = loadStatus(ev.Result, m)
		return render()

	case EventRoll:
		// One stream at a time; a second roll while one is running is ignored.
		if m.rolling != nil {
			return nil
		}
		count := max(ev.Amount, 1)
		roll := capability.Random[Effect, Event](capability.RandomOperation{Min: 1, Max: 6, Count: count}, liftRandom).
			ThenSend(func(n capability.RandomNumber) Event {
				return Event{Kind: EventRolled, Amount: n.Value}
			})
		m.rolling = roll.AbortHandle()
		m.rollsLeft = count
		m.Status = "rolling"
		return command.All(render(), roll)

	case EventRolled:
		m.Rolls = append(m.Rolls, ev.Amount)
		m.rollsLeft--
		if m.rollsLeft <= 0 {
			m.stopRolling()
			m.Status = "rolled"
		}
		return render()

	case EventStopRolling:
		if m.rolling == nil {
			return nil
		}
		m.stopRolling()
		m.Status = "stopped"
		return render()
	}

	return nil
}

// View implements core.App.
func (App) View(m *Model) ViewModel {
	rolls := make([]int, len(m.Rolls))
	copy(rolls, m.Rolls)
	return ViewModel{
		Count:   m.Count,
		Rolls:   rolls,
		Rolling: m.rolling != nil,
		Status:  m.Status,
	}
}

func (m *Model) stopRolling() {
	if m.rolling != nil {
		m.rolling.Abort()
	}
	m.rolling = nil
	m.rollsLeft = 0
}

func loadStatus(r capability.KeyValueResult, m *Model) string {
	if r.Error != "" {
		return "load failed: " + r.Error
	}
	if !r.Found {
		return "nothing saved"
	}
	n, err := strconv.Atoi(r.Value)
	if err != nil {
		return fmt.Sprintf("load failed: bad count %q", r.Value)
	}
	m.Count = n
	return "loaded"
}

func render() Cmd {
	return capability.Render[Effect, Event](liftRender)
}

// NewCore creates a Core running the app.
func NewCore(opts ...core.Option) *core.Core[Event, Model, ViewModel, Effect] {
	return core.New[Event, Model, ViewModel, Effect](App{}, opts...)
}
