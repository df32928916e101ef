package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.WSHandler.RegisterRoutes(mux)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

// setupHealthCheck exposes bridge/store/relay health. The bridge retrying a
// dead notification connection keeps running but reports unhealthy here.
func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"listener": string(services.Listener.State()),
			"healthy":  services.Listener.Healthy(),
		}
		if err := services.Store.Ping(r.Context()); err != nil {
			status["healthy"] = false
			status["database"] = err.Error()
		} else {
			status["database"] = "ok"
		}
		if services.Relay != nil {
			status["nats_connected"] = services.Relay.Connected()
		}

		code := http.StatusOK
		if status["healthy"] != true {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error().Err(err).Msg("failed to write health response")
		}
	})
}
