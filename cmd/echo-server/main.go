// Command echo-server hosts one exchange.Site behind a websocket upgrade
// endpoint, grounded on the teacher's cmd/server/main.go: a gorilla/mux
// router, a gorilla/websocket upgrader, and stdlib log for operational
// output.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kevinxiao27/echo/exchange"
	"github.com/kevinxiao27/echo/id"
	"github.com/kevinxiao27/echo/protocol"
	"github.com/kevinxiao27/echo/transport/ws"
)

func main() {
	var (
		addr    string
		siteArg uint32
		trace   bool
	)

	cmd := &cobra.Command{
		Use:   "echo-server",
		Short: "Serve one replicated site over a websocket endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, id.Site(siteArg), trace)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().Uint32Var(&siteArg, "site", 1, "this process's site identifier")
	cmd.Flags().BoolVar(&trace, "trace", false, "enable structured FSM trace dumps")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, site id.Site, trace bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s := exchange.New[string](site)
	if trace {
		s.SetTracer(protocol.NewLitterTracer())
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	r := mux.NewRouter()
	r.HandleFunc("/incoming", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("upgrade failed: %v", err)
			return
		}
		log.Printf("INCOMING CONNECTED: site=%v remote=%s", site, req.RemoteAddr)
		if err := ws.ServeIncoming[string](ctx, conn, s.Incoming()); err != nil {
			log.Printf("incoming exchange ended: %v", err)
		}
	})
	r.HandleFunc("/outgoing", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("upgrade failed: %v", err)
			return
		}
		log.Printf("OUTGOING CONNECTED: site=%v remote=%s", site, req.RemoteAddr)
		if err := ws.DialOutgoing[string](ctx, conn, s.Outgoing()); err != nil {
			log.Printf("outgoing exchange ended: %v", err)
		}
	})

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Printf("echo-server listening on %s (site=%v)", addr, site)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
