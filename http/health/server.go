// Package health is the side HTTP surface of a DBE process: liveness,
// prometheus metrics, the openapi UI and a status snapshot.
package health

import (
	httpgo "net/http"

	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/json"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/go-kratos/swagger-api/openapiv2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc returns a JSON-encodable snapshot served on /status.
type StatusFunc func() any

type Server struct {
	*http.Server
}

func NewServer(addr string, status StatusFunc) *Server {
	s := http.NewServer(http.Address(addr))

	s.HandlePrefix("/q/", openapiv2.NewHandler())
	s.Handle("/metrics", promhttp.Handler())
	s.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(httpgo.StatusOK)
	})

	if status != nil {
		s.HandleFunc("/status", statusHandler(status))
	}

	return &Server{s}
}

func statusHandler(status StatusFunc) httpgo.HandlerFunc {
	codec := encoding.GetCodec(json.Name)

	return func(w http.ResponseWriter, r *http.Request) {
		b, err := codec.Marshal(status())
		if err != nil {
			log.Errorf("[health.Server] marshal status failed. %+v", err)
			w.WriteHeader(httpgo.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpgo.StatusOK)

		if _, err := w.Write(b); err != nil {
			log.Errorf("[health.Server] write status failed. %+v", err)
		}
	}
}
