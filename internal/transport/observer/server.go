// Package observer serves read-only map views for operators on loopback.
package observer

import (
	"bytes"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"terracell.ai/internal/protocol"
	"terracell.ai/internal/render"
	"terracell.ai/internal/sim/terrain/gen"
)

// MapView is what the observer reads from the controller.
type MapView interface {
	MapID() string
	Current() *gen.Output
	StateName() string
}

type Server struct {
	src MapView
	log *log.Logger
}

func NewServer(src MapView, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{src: src, log: logger}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allow(rw, r) {
			return
		}
		resp := protocol.NewBootstrap(s.src.MapID(), s.src.StateName(), s.src.Current())
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// MapSVGHandler renders the current map. Query: width, height, open, triangles, dual, sites.
func (s *Server) MapSVGHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allow(rw, r) {
			return
		}
		opts, err := parseOptions(r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		if err := render.SVG(&buf, s.src.Current(), opts); err != nil {
			s.log.Printf("observer: svg: %v", err)
			http.Error(rw, "render failed", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "image/svg+xml")
		rw.Header().Set("Cache-Control", "no-store")
		_, _ = rw.Write(buf.Bytes())
	}
}

func (s *Server) MapPNGHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allow(rw, r) {
			return
		}
		opts, err := parseOptions(r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		if err := render.PNG(&buf, s.src.Current(), opts); err != nil {
			s.log.Printf("observer: png: %v", err)
			http.Error(rw, "render failed", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "image/png")
		rw.Header().Set("Cache-Control", "no-store")
		_, _ = rw.Write(buf.Bytes())
	}
}

func (s *Server) allow(rw http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

const maxImageSide = 4096

func parseOptions(r *http.Request) (render.Options, error) {
	q := r.URL.Query()
	opts := render.Options{Width: 800, Padding: 8}
	for _, k := range []string{"width", "height"} {
		v := strings.TrimSpace(q.Get(k))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxImageSide {
			return opts, &badParam{name: k, value: v}
		}
		if k == "width" {
			opts.Width = n
		} else {
			opts.Height = n
		}
	}
	opts.OpenCells = flag(q.Get("open"))
	opts.Triangles = flag(q.Get("triangles"))
	opts.Dual = flag(q.Get("dual"))
	opts.Sites = flag(q.Get("sites"))
	return opts, nil
}

type badParam struct{ name, value string }

func (e *badParam) Error() string {
	return "bad " + e.name + "=" + strconv.Quote(e.value) + " (want 1.." + strconv.Itoa(maxImageSide) + ")"
}

func flag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
