package cell

import (
	"errors"
	"fmt"

	"plegma/internal/model"
)

const (
	mailboxCap = 4
	historyCap = 10
)

// ErrStopped is returned by synchronous queries against a worker whose run
// loop has already exited, cleanly or by crash.
var ErrStopped = errors.New("cell worker stopped")

// ExitNotice is delivered to the owning coordinator when a worker's run loop
// dies unexpectedly. Clean stops never produce a notice.
type ExitNotice struct {
	Coord model.Coord
	Err   error
}

type prepareMsg struct{ neighbors []model.State }

type commitMsg struct{}

type setRuleMsg struct{ rule model.RuleSet }

type stateMsg struct{ reply chan model.CellSnapshot }

type stopMsg struct{}

type killMsg struct{ reason string }

// Worker owns the state of exactly one grid coordinate. All interaction goes
// through its mailbox; nothing else ever reads or writes its cell state.
// Because prepare and commit for a round are sent by the same coordinator in
// send order, the mailbox guarantees a worker processes its own prepare
// before its own commit without further synchronization.
type Worker struct {
	coord   model.Coord
	mailbox chan any
	done    chan struct{}
	exits   chan<- ExitNotice
}

type cellState struct {
	current    model.State
	staged     model.State
	rule       model.RuleSet
	generation uint64
	history    []model.State
}

// Spawn starts a worker goroutine for one coordinate. exits may be nil when
// no crash monitoring is wanted (tests, throwaway grids).
func Spawn(coord model.Coord, initial model.State, rule model.RuleSet, exits chan<- ExitNotice) *Worker {
	w := &Worker{
		coord:   coord,
		mailbox: make(chan any, mailboxCap),
		done:    make(chan struct{}),
		exits:   exits,
	}
	go w.run(cellState{
		current: initial,
		staged:  initial,
		rule:    rule.Clone(),
		history: make([]model.State, 0, historyCap),
	})
	return w
}

func (w *Worker) Coord() model.Coord {
	return w.coord
}

func (w *Worker) run(state cellState) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil && w.exits != nil {
			w.exits <- ExitNotice{Coord: w.coord, Err: fmt.Errorf("cell worker %s: %v", w.coord, r)}
		}
	}()

	for raw := range w.mailbox {
		switch msg := raw.(type) {
		case prepareMsg:
			live := 0
			for _, neighbor := range msg.neighbors {
				if neighbor == model.Alive {
					live++
				}
			}
			state.staged = state.rule.Next(state.current, live)
		case commitMsg:
			state.current = state.staged
			state.generation++
			if len(state.history) == historyCap {
				copy(state.history, state.history[1:])
				state.history = state.history[:historyCap-1]
			}
			state.history = append(state.history, state.current)
		case setRuleMsg:
			state.rule = msg.rule.Clone()
		case stateMsg:
			msg.reply <- model.CellSnapshot{
				Coord:      w.coord,
				State:      state.current,
				Generation: state.generation,
				Rule:       state.rule.Clone(),
				History:    append([]model.State(nil), state.history...),
			}
		case stopMsg:
			return
		case killMsg:
			panic(msg.reason)
		}
	}
}

// Prepare stages the next state from a neighbor snapshot. Fire-and-forget.
func (w *Worker) Prepare(neighbors []model.State) error {
	return w.send(prepareMsg{neighbors: neighbors})
}

// Commit promotes the staged state and advances the worker's generation.
// Fire-and-forget.
func (w *Worker) Commit() error {
	return w.send(commitMsg{})
}

// SetRule replaces the worker's private rule copy. Fire-and-forget.
func (w *Worker) SetRule(rule model.RuleSet) error {
	return w.send(setRuleMsg{rule: rule})
}

// State performs a synchronous request/response read of the worker's current
// state. Returns ErrStopped instead of blocking when the worker is gone.
func (w *Worker) State() (model.CellSnapshot, error) {
	reply := make(chan model.CellSnapshot, 1)
	if err := w.send(stateMsg{reply: reply}); err != nil {
		return model.CellSnapshot{}, err
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-w.done:
		return model.CellSnapshot{}, ErrStopped
	}
}

// Stop shuts the worker down cleanly. No exit notice is emitted.
func (w *Worker) Stop() {
	_ = w.send(stopMsg{})
}

// Kill makes the worker panic inside its run loop, producing an exit notice.
// Fault-injection hook used to exercise the replacement path.
func (w *Worker) Kill(reason string) {
	_ = w.send(killMsg{reason: reason})
}

func (w *Worker) send(msg any) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}
	select {
	case w.mailbox <- msg:
		return nil
	case <-w.done:
		return ErrStopped
	}
}
