// Package teastate connects sharedstate keys to Bubble Tea programs. Each
// committed write is delivered to the program as a ChangedMsg, so models that
// share a key re-render when any of them updates it.
//
//	p := tea.NewProgram(model)
//	b, err := teastate.Bind(store, todos, p.Send, sharedstate.WithDefault([]Todo{}))
//	defer b.Unsubscribe()
//
// and in the model:
//
//	func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
//	    if v, ok := teastate.Changed(msg, todos); ok {
//	        m.todos = v
//	    }
//	    ...
//	}
package teastate

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jilio/sharedstate"
)

// ChangedMsg reports a committed write to Key
type ChangedMsg[T any] struct {
	Key   string
	Value T
}

// Bind subscribes send to key. send is usually (*tea.Program).Send.
func Bind[T any](s *sharedstate.Store, key sharedstate.Key[T], send func(tea.Msg), opts ...sharedstate.BindOption[T]) (*sharedstate.Binding[T], error) {
	return sharedstate.Bind(s, key, func(v T) {
		send(ChangedMsg[T]{Key: key.Name(), Value: v})
	}, opts...)
}

// Changed extracts the value from msg if it is a ChangedMsg for key
func Changed[T any](msg tea.Msg, key sharedstate.Key[T]) (T, bool) {
	if m, ok := msg.(ChangedMsg[T]); ok && m.Key == key.Name() {
		return m.Value, true
	}
	var zero T
	return zero, false
}

// Set returns a command that writes value to key. A failed write is returned
// to the program as an ErrorMsg.
func Set[T any](s *sharedstate.Store, key sharedstate.Key[T], value T) tea.Cmd {
	return func() tea.Msg {
		if err := sharedstate.Write(s, key, value); err != nil {
			return ErrorMsg{Key: key.Name(), Err: err}
		}
		return nil
	}
}

// ErrorMsg carries a write error back into the program
type ErrorMsg struct {
	Key string
	Err error
}

func (e ErrorMsg) Error() string {
	return "teastate: write " + e.Key + ": " + e.Err.Error()
}

func (e ErrorMsg) Unwrap() error {
	return e.Err
}
