package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	capswalk "github.com/david-fong/capswalk-sub001"
	"github.com/david-fong/capswalk-sub001/internal/lang/packs"
	"github.com/david-fong/capswalk-sub001/internal/net/intake"
	"github.com/david-fong/capswalk-sub001/internal/net/ws"
	"github.com/david-fong/capswalk-sub001/internal/observability"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
)

type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	WS            ws.HandlerConfig
	Observability observability.Config
}

func NewHTTPHandler(hub *capswalk.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	wsCfg := cfg.WS
	if wsCfg.Logger == nil {
		wsCfg.Logger = logger
	}

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string               `json:"status"`
			ServerTime int64                `json:"serverTime"`
			Hub        capswalk.Diagnostics `json:"hub"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Hub:        hub.Diagnostics(),
		}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		join, err := hub.Join()
		if err != nil {
			if errors.Is(err, capswalk.ErrRosterFull) {
				httpError(w, err.Error(), nethttp.StatusConflict)
				return
			}
			httpError(w, "join failed", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, nethttp.StatusOK, join)
	}).Methods(nethttp.MethodPost)

	router.HandleFunc("/game/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		current, pack := hub.CurrentConfig()
		defer r.Body.Close()
		cfg, pack, err := intake.StageReset(r.Body, current, pack)
		if err != nil {
			httpError(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		snapshot, err := hub.Reset(cfg, pack)
		if err != nil {
			logger.Printf("reset failed: %v", err)
			httpError(w, err.Error(), nethttp.StatusUnprocessableEntity)
			return
		}
		response := struct {
			Status string `json:"status"`
			Epoch  string `json:"epoch"`
			Pack   string `json:"pack"`
			Config any    `json:"config"`
		}{
			Status: "ok",
			Epoch:  snapshot.Epoch,
			Pack:   pack,
			Config: snapshot.Config,
		}
		writeJSON(w, logger, nethttp.StatusOK, response)
	}).Methods(nethttp.MethodPost)

	router.HandleFunc("/game/phase", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		defer r.Body.Close()
		phase, err := intake.StagePhase(r.Body)
		if err != nil {
			httpError(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		if err := hub.SetPhase(phase); err != nil {
			httpError(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		writeJSON(w, logger, nethttp.StatusOK, map[string]any{"status": "ok", "phase": phase})
	}).Methods(nethttp.MethodPost)

	router.HandleFunc("/events", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var since int64
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				httpError(w, "invalid since", nethttp.StatusBadRequest)
				return
			}
			since = parsed
		}
		writeJSON(w, logger, nethttp.StatusOK, hub.EventsSince(since))
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/snapshot", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, logger, nethttp.StatusOK, hub.Snapshot())
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/lang/packs", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, current := hub.CurrentConfig()
		payload := struct {
			Current string          `json:"current"`
			Packs   []packs.Summary `json:"packs"`
		}{
			Current: current,
			Packs:   packs.Summaries(),
		}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	}).Methods(nethttp.MethodGet)

	wsHandler := ws.NewHandler(hub, wsCfg)
	router.HandleFunc("/ws", wsHandler.Handle)

	observability.Register(router, cfg.Observability)

	if cfg.ClientDir != "" {
		router.PathPrefix("/").Handler(nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return router
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
