package observability

import (
	nethttp "net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
)

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	EnablePprof bool
}

// Register mounts the enabled debug endpoints under /debug/pprof/.
func Register(router *mux.Router, cfg Config) {
	if router == nil || !cfg.EnablePprof {
		return
	}
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.HandleFunc("/cmdline", pprof.Cmdline).Methods(nethttp.MethodGet)
	debug.HandleFunc("/profile", pprof.Profile).Methods(nethttp.MethodGet)
	debug.HandleFunc("/symbol", pprof.Symbol).Methods(nethttp.MethodGet, nethttp.MethodPost)
	debug.HandleFunc("/trace", pprof.Trace).Methods(nethttp.MethodGet)
	debug.PathPrefix("/").HandlerFunc(pprof.Index).Methods(nethttp.MethodGet)
}
