// Package stream pairs the Output and Done events of a logical operation and
// relays process output onto them.
package stream

import (
	"strings"
	"sync"

	"github.com/miroslavpejic85/mirotalk-admin/internal/outputfilter"
)

// Events names the outbound event pair of one operation.
type Events struct {
	Output string
	Done   string
}

// EventsFor derives the pair from a base name: "update" gives updateOutput
// and updateDone.
func EventsFor(name string) Events {
	return Events{Output: name + "Output", Done: name + "Done"}
}

var TerminalEvents = EventsFor("terminal")

// Emitter delivers an outbound event to one client. Emit must not block
// indefinitely and must be safe for concurrent use.
type Emitter interface {
	Emit(event string, data any)
}

// Operation emits the events of one run of an operation. Done is emitted at
// most once and no Output follows it.
type Operation struct {
	emitter Emitter
	events  Events
	filter  bool

	mu   sync.Mutex
	done bool
}

// NewOperation starts an operation. When filter is set, Output text passes
// through outputfilter.Clean first.
func NewOperation(emitter Emitter, events Events, filter bool) *Operation {
	return &Operation{emitter: emitter, events: events, filter: filter}
}

func (o *Operation) Events() Events { return o.events }

// Output emits text unless it is blank after filtering or the operation has
// finished.
func (o *Operation) Output(text string) {
	if o.filter {
		text = outputfilter.Clean(text)
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return
	}
	o.emitter.Emit(o.events.Output, text)
}

// Finish emits Done with code. It reports false when the operation had
// already finished or was detached.
func (o *Operation) Finish(code int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return false
	}
	o.done = true
	o.emitter.Emit(o.events.Done, code)
	return true
}

// Fail emits msg unfiltered followed by Done(1).
func (o *Operation) Fail(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return
	}
	o.done = true
	o.emitter.Emit(o.events.Output, msg)
	o.emitter.Emit(o.events.Done, 1)
}

// Detach silences the operation without emitting Done. Used when the client
// is gone.
func (o *Operation) Detach() {
	o.mu.Lock()
	o.done = true
	o.mu.Unlock()
}

// Finished reports whether Done was emitted or the operation detached.
func (o *Operation) Finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}
