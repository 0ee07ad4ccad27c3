// Package ws frames protocol messages as JSON over a gorilla/websocket
// connection, the way the teacher's cmd/server frames its WSMessage
// envelope with conn.ReadJSON/conn.WriteJSON. It is the WebSocket one of
// the two concrete transports SPEC_FULL.md §1 lists around the core.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"

	"github.com/kevinxiao27/echo/exchange"
	"github.com/kevinxiao27/echo/protocol"
	"github.com/kevinxiao27/echo/transport"
)

// closeErr reports whether err represents an expected websocket closure
// (peer hung up cleanly, or the connection was torn down by the
// conn.Close() call in ServeIncoming or DialOutgoing), as opposed to a
// genuine transport failure.
func closeErr(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed)
}

// envelope is the wire frame: exactly one of Incoming/Outgoing is set,
// discriminated by Kind, mirroring the teacher's WSMessage{Type, Data}.
type envelope[T any] struct {
	Kind     string              `json:"kind"`
	Incoming *protocol.Incoming[T] `json:"incoming,omitempty"`
	Outgoing *protocol.Outgoing    `json:"outgoing,omitempty"`
}

// ServeIncoming runs the server side of a pairing (ex.Incoming) over conn:
// it reads protocol.Outgoing envelopes off the wire and writes
// protocol.Incoming[T] envelopes back, pumping both through conn's
// ReadJSON/WriteJSON exactly as the teacher's handleWebSocket loop does.
// It blocks until ctx is cancelled, the FSM terminates, or the connection
// errors.
func ServeIncoming[T any](ctx context.Context, conn *websocket.Conn, ex exchange.ReceiveExchange[T]) error {
	inbound := make(chan protocol.Outgoing, 1)
	outbound := make(chan protocol.Incoming[T], 1)

	readErrs := make(chan error, 1)
	go func() { readErrs <- pumpRead(conn, inbound) }()

	writeErrs := make(chan error, 1)
	go func() { writeErrs <- pumpWriteIncoming(conn, outbound) }()

	runErr := ex.Run(ctx, inbound, outbound)
	close(outbound)
	conn.Close()

	if runErr != nil {
		return runErr
	}
	if err := <-readErrs; err != nil {
		return err
	}
	return <-writeErrs
}

// DialOutgoing runs the client side of a pairing (ex.Outgoing) over conn,
// symmetric to ServeIncoming: it reads protocol.Incoming[T] envelopes and
// writes protocol.Outgoing envelopes.
func DialOutgoing[T any](ctx context.Context, conn *websocket.Conn, ex exchange.SendExchange[T]) error {
	inbound := make(chan protocol.Incoming[T], 1)
	outbound := make(chan protocol.Outgoing, 1)

	readErrs := make(chan error, 1)
	go func() { readErrs <- pumpReadIncoming(conn, inbound) }()

	writeErrs := make(chan error, 1)
	go func() { writeErrs <- pumpWrite(conn, outbound) }()

	runErr := ex.Run(ctx, inbound, outbound)
	close(outbound)
	conn.Close()

	if runErr != nil {
		return runErr
	}
	if err := <-readErrs; err != nil {
		return err
	}
	return <-writeErrs
}

func pumpRead(conn *websocket.Conn, inbound chan<- protocol.Outgoing) error {
	defer close(inbound)
	for {
		var env envelope[struct{}]
		if err := conn.ReadJSON(&env); err != nil {
			if closeErr(err) {
				return nil
			}
			return transport.Wrap(err)
		}
		if env.Outgoing == nil {
			return fmt.Errorf("ws: expected outgoing frame, got kind %q", env.Kind)
		}
		inbound <- *env.Outgoing
	}
}

func pumpReadIncoming[T any](conn *websocket.Conn, inbound chan<- protocol.Incoming[T]) error {
	defer close(inbound)
	for {
		var env envelope[T]
		if err := conn.ReadJSON(&env); err != nil {
			if closeErr(err) {
				return nil
			}
			return transport.Wrap(err)
		}
		if env.Incoming == nil {
			return fmt.Errorf("ws: expected incoming frame, got kind %q", env.Kind)
		}
		inbound <- *env.Incoming
	}
}

func pumpWriteIncoming[T any](conn *websocket.Conn, outbound <-chan protocol.Incoming[T]) error {
	for msg := range outbound {
		env := envelope[T]{Kind: "incoming", Incoming: &msg}
		if err := conn.WriteJSON(env); err != nil {
			return transport.Wrap(err)
		}
	}
	return nil
}

func pumpWrite(conn *websocket.Conn, outbound <-chan protocol.Outgoing) error {
	for msg := range outbound {
		env := envelope[struct{}]{Kind: "outgoing", Outgoing: &msg}
		if err := conn.WriteJSON(env); err != nil {
			return transport.Wrap(err)
		}
	}
	return nil
}
