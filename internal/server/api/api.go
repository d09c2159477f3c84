package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/types"
)

// This package serves the session state as JSON for scripts that drive
// the projector and want to watch it.

type api struct {
	session func() types.SessionStatus
	devices func() ([]types.DeviceInfo, error)
	version string
	logger  *logs.Logger
}

func ServeAPI(
	r *mux.Router,
	session func() types.SessionStatus,
	devices func() ([]types.DeviceInfo, error),
	v string,
	l *logs.Logger,
) {
	api := &api{
		session: session,
		devices: devices,
		version: v,
		logger:  l,
	}
	r.Methods("GET").Path("/").HandlerFunc(api.Info)
	r.Methods("GET").Path("/session").HandlerFunc(api.Session)
	r.Methods("GET").Path("/devices").HandlerFunc(api.Devices)
}

func (a *api) Info(w http.ResponseWriter, r *http.Request) {
	a.respond(w, types.VersionInfo{Version: a.version})
}

func (a *api) Session(w http.ResponseWriter, r *http.Request) {
	a.respond(w, a.session())
}

func (a *api) Devices(w http.ResponseWriter, r *http.Request) {
	devs, err := a.devices()
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, devs)
}

func (a *api) respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.respondError(w, err)
	}
}

func (a *api) respondError(w http.ResponseWriter, err error) {
	type jsonError struct {
		Error string `json:"error"`
	}
	a.logger.Log("Returning error: " + err.Error())
	w.WriteHeader(http.StatusBadRequest)

	// if even the encoder of the error errors, just log the error
	err = json.NewEncoder(w).Encode(jsonError{
		Error: err.Error(),
	})
	if err != nil {
		a.logger.Log("Error while writing error: " + err.Error())
	}
}
