// Package memory implements the simplest possible transport: an
// in-process channel pass-through buffered to one message. It performs no
// framing or serialization — exactly the "in-memory pass-through"
// alternative SPEC_FULL.md §1 calls out as external to the core.
package memory

// NewLink allocates a single buffered channel and returns its two
// directional views. Anything sent on the returned send-only side is
// observable on the receive-only side; closing the send side closes the
// link, which every protocol FSM state treats as "peer finished".
//
// The buffer of one mirrors what a minimal real transport would give you
// for free (room for one in-flight frame) without hiding backpressure:
// a second send still blocks until the first is received.
func NewLink[T any]() (recv <-chan T, send chan<- T) {
	ch := make(chan T, 1)
	return ch, ch
}
