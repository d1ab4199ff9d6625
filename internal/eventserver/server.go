// Package eventserver implements the HTTP Event Endpoint (spec section
// 4.5): the route set the node's event stream POSTs against, fronted by a
// raw-payload recording middleware and backed by the serialization queue.
// The router/Server shape (routes(), writeJSON) is grounded on
// cmd/explorer's Server, generalized from gorilla/mux to go-chi/chi (the
// teacher declared chi as a dependency but never wired it in).
package eventserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"stacks-event-ingest/internal/eventstore"
	"stacks-event-ingest/internal/ingest"
	"stacks-event-ingest/internal/queue"
)

// maxBodyBytes is the 500 MB cap of spec section 4.5 ("the initial chain
// genesis payload is ~80 MB").
const maxBodyBytes = 500 * 1024 * 1024

// Server is the ingestion core's HTTP front end.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	handlers   *ingest.Handlers
	rawLog     eventstore.RawEventLog
	queue      *queue.Queue
	log        *logrus.Entry
}

// New constructs a Server wired to the given handlers, raw-event log, and
// serialization queue.
func New(addr string, handlers *ingest.Handlers, rawLog eventstore.RawEventLog, q *queue.Queue, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{handlers: handlers, rawLog: rawLog, queue: q, log: log}
	s.router = chi.NewRouter()
	s.routes()
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Start blocks, serving until the listener fails.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("event server listening")
	return s.httpServer.ListenAndServe()
}

// Handler exposes the router so callers can drive it without a real
// listener.
func (s *Server) Handler() http.Handler { return s.router }

// Serve runs the server on an already-bound listener, for callers that need
// to know the bound address (e.g. ":0" loopback ports) before serving.
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("event server listening")
	return s.httpServer.Serve(ln)
}

// Close shuts the underlying HTTP server down.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

func (s *Server) routes() {
	s.router.Get("/", s.handleReady)
	s.router.Post("/new_block", s.wrap(s.handlers.NewBlock))
	s.router.Post("/new_microblocks", s.wrap(s.handlers.NewMicroblocks))
	s.router.Post("/new_burn_block", s.wrap(s.handlers.NewBurnBlock))
	s.router.Post("/new_mempool_tx", s.wrap(s.handlers.NewMempoolTx))
	s.router.Post("/drop_mempool_tx", s.wrap(s.handlers.DropMempoolTx))
	s.router.Post("/attachments/new", s.wrap(s.handlers.Attachments))
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "msg": "stacks event ingest"})
}

// wrap implements the raw-payload-recorder-then-handler discipline of spec
// section 4.5: the body is read and persisted as a RawEventRecord before
// the specific handler runs; the handler itself runs behind the single
// serialization queue, so store commits land in request-arrival order
// (invariant P2) regardless of how many requests the HTTP layer accepted
// concurrently.
func (s *Server) wrap(handle func(ctx context.Context, body []byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err)
			return
		}

		if _, err := s.rawLog.StoreRawEventRequest(r.Context(), r.URL.Path, body); err != nil {
			s.log.WithError(err).WithField("path", r.URL.Path).Error("raw event persist failed")
			writeError(w, err)
			return
		}

		submitErr := s.queue.Submit(r.Context(), func(ctx context.Context) error {
			return handle(ctx, body)
		})
		if submitErr != nil {
			s.log.WithError(submitErr).WithField("path", r.URL.Path).Error("handler failed")
			writeError(w, submitErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
