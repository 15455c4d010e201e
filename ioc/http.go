package ioc

import (
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// InitHealthServer returns nil when http.addr is empty.
func InitHealthServer(health http.Handler) *http.Server {
	addr := viper.GetString("http.addr")
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", health)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
