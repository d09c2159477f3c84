package status

import (
	"net/http"
)

type originCheck struct {
	handler http.Handler
	allowed map[string]string
}

const (
	originHeader      string = "Origin"
	frameOriginHeader string = "X-Frame-Options"
)

// ServeHTTP lets a request through only when its Origin header is the
// one allowed for its path. Paths not in the map need no Origin at all.
func (o *originCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(originHeader)

	if o.allowed[r.URL.Path] != origin {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set(frameOriginHeader, "DENY")
	o.handler.ServeHTTP(w, r)
}

func OriginCheck(allowed map[string]string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &originCheck{
			allowed: allowed,
			handler: h,
		}
	}
}
