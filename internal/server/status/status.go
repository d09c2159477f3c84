package status

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"github.com/macpod/lasershark-go/internal/logs"
	"github.com/macpod/lasershark-go/types"
)

// This package serves the status page on /status/ and the detailed log
// at /status/log.gz.

type status struct {
	session                             func() types.SessionStatus
	version                             string
	shortMemoryWriter, longMemoryWriter *logs.MemoryWriter
	logger                              *logs.Logger
}

const csrfkey = "q7c2mv0x81kd5zp3fnw6ty49hb0ls2ue"

func ServeStatusRedirect(r *mux.Router, addr string) {
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://"+addr+"/status/", http.StatusMovedPermanently)
	})
	r.Use(OriginCheck(map[string]string{
		"": "",
	}))
}

// ServeStatus adds the status routes. addr is the address the page is
// served on; the log download only accepts posts from it.
func ServeStatus(
	r *mux.Router,
	addr string,
	session func() types.SessionStatus,
	v string,
	mw, dmw *logs.MemoryWriter,
) {
	status := &status{
		session:           session,
		version:           v,
		shortMemoryWriter: mw,
		longMemoryWriter:  dmw,
		logger:            logs.New(dmw, "status"),
	}
	r.Methods("GET").Path("/").HandlerFunc(status.statusPage)
	r.Methods("POST").Path("/log.gz").HandlerFunc(status.statusGzip)

	r.Use(csrf.Protect([]byte(csrfkey), csrf.Secure(false)))
	r.Use(OriginCheck(map[string]string{
		"/status/":       "",
		"/status/log.gz": "http://" + addr,
	}))
}

func (s *status) statusGzip(w http.ResponseWriter, r *http.Request) {
	s.logger.Log("building gzip")

	gzip, err := s.longMemoryWriter.Gzip(logHeader(s.version, s.session()) + "\nCurrent log:\n")
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")

	_, err = w.Write(gzip)
	if err != nil {
		s.logger.Log("writing gzip: " + err.Error())
	}
}

func (s *status) statusPage(w http.ResponseWriter, r *http.Request) {
	s.logger.Log("building status page")

	log, err := s.shortMemoryWriter.String(logHeader(s.version, s.session()))
	if err != nil {
		respondError(w, err)
		return
	}

	data := &statusTemplateData{
		Version:   s.version,
		Session:   s.session(),
		Log:       log,
		CSRFField: csrf.TemplateField(r),
	}

	err = statusTemplate.Execute(w, data)
	if err != nil {
		s.logger.Log("template: " + err.Error())
	}
}

// logHeader describes the running session at the top of a log export.
func logHeader(version string, st types.SessionStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "lasershark %s\n", version)
	if !st.Active {
		b.WriteString("no session\n")
		return b.String()
	}
	c := st.Caps
	fmt.Fprintf(&b, "device %q bus %d address %d, firmware %d.%d\n",
		st.Device.Serial, st.Device.Bus, st.Device.Address, c.FWMajor, c.FWMinor)
	fmt.Fprintf(&b, "dac %d..%d, max rate %d pps, ringbuffer %d, packet %d bulk / %d iso\n",
		c.DACMin, c.DACMax, c.MaxILDARate, c.RingbufferSampleCount, c.BulkPacketSampleCount, c.PacketSampleCount)
	fmt.Fprintf(&b, "%d lines, %d samples dropped\n", st.Lines, st.Dropped)
	return b.String()
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}
