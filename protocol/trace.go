package protocol

import "github.com/sanity-io/litter"

// Tracer receives a structured dump of every effect an FSM produces. It
// generalizes the teacher's ad hoc litter.Config.HidePrivateFields debug
// print in main.go into an opt-in hook any exchange can wire up.
type Tracer interface {
	Trace(label string, v any)
}

// LitterTracer pretty-prints every traced value with sanity-io/litter,
// the same library and the same HidePrivateFields=false configuration
// the teacher's main.go sets before printing oplog state.
type LitterTracer struct{}

func NewLitterTracer() LitterTracer {
	litter.Config.HidePrivateFields = false
	return LitterTracer{}
}

func (LitterTracer) Trace(label string, v any) {
	litter.Dump(map[string]any{label: v})
}

// NoopTracer discards every trace call; it is the zero-cost default a
// runtime falls back to when no --trace flag is set.
type NoopTracer struct{}

func (NoopTracer) Trace(string, any) {}
