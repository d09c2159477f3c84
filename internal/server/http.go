package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/internal/metrics"
	"github.com/macpod/lasershark-go/internal/server/api"
	"github.com/macpod/lasershark-go/internal/server/status"
	"github.com/macpod/lasershark-go/types"
)

const DefaultAddr = "127.0.0.1:21330"

type serverPrivate struct {
	*http.Server
}

// Server serves the status page, a JSON view of the session and the
// metrics of this process.
type Server struct {
	serverPrivate

	writer io.Writer
	logger *logs.Logger
}

type Options struct {
	Addr     string
	Version  string
	Session  func() types.SessionStatus
	Devices  func() ([]types.DeviceInfo, error)
	Registry *prometheus.Registry
}

func New(
	opts Options,
	stderrWriter io.Writer,
	shortWriter *logs.MemoryWriter,
	longWriter *logs.MemoryWriter,
) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	logger := logs.New(longWriter, "server")
	logger.Log("starting")

	https := &http.Server{
		Addr: opts.Addr,
	}

	allWriter := io.MultiWriter(stderrWriter, shortWriter, longWriter)
	s := &Server{
		serverPrivate: serverPrivate{
			Server: https,
		},
		writer: allWriter,
		logger: logger,
	}

	r := mux.NewRouter()
	statusRouter := r.PathPrefix("/status").Subrouter()
	apiRouter := r.PathPrefix("/api").Subrouter()
	redirectRouter := r.Methods("GET").Path("/").Subrouter()

	status.ServeStatus(statusRouter, opts.Addr, opts.Session, opts.Version, shortWriter, longWriter)
	api.ServeAPI(apiRouter, opts.Session, opts.Devices, opts.Version, logger.Named("api"))
	status.ServeStatusRedirect(redirectRouter, opts.Addr)
	if opts.Registry != nil {
		r.Methods("GET").Path("/metrics").Handler(metrics.Handler(opts.Registry))
	}

	var h http.Handler = r

	// Log after the request is done, in the Apache format.
	h = handlers.LoggingHandler(allWriter, h)
	// Log when the request is received.
	h = s.logRequest(h)

	https.Handler = h

	logger.Log("server created")
	return s
}

func (s *Server) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := fmt.Sprintf("%s %s\n", r.Method, r.URL)
		_, err := s.writer.Write([]byte(text))
		if err != nil {
			// give up, just print on stdout
			fmt.Println(err)
		}
		handler.ServeHTTP(w, r)
	})
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.logger.Log("shutting down")
		err := s.Shutdown(context.Background())
		if e := <-errc; !errors.Is(e, http.ErrServerClosed) && err == nil {
			err = e
		}
		return err
	}
}
