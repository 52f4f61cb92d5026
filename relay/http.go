package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/inviterelay/kit"
	"github.com/hazyhaar/inviterelay/shield"
	"github.com/hazyhaar/inviterelay/store"
)

// maxBody caps POST bodies.
const maxBody = 4 << 10

// RegisterHTTP mounts the status API on r.
func (o *Operator) RegisterHTTP(r chi.Router) {
	ep := o.Endpoints()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/state", o.serve(ep.State, nil))
	r.Post("/reset", o.serve(ep.Reset, nil))
	r.Post("/code", o.serve(ep.SetCode, func(r *http.Request) (any, error) {
		var req SetCodeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
			return nil, err
		}
		return req, nil
	}))
	r.Get("/events", o.serve(ep.Events, func(r *http.Request) (any, error) {
		var req EventsRequest
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return nil, errors.New("limit must be a non-negative integer")
			}
			req.Limit = n
		}
		return req, nil
	}))
}

// Handler returns a chi router serving the status API.
func (o *Operator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(o.logger) {
		r.Use(mw)
	}
	o.RegisterHTTP(r)
	return r
}

func (o *Operator) serve(e kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req any
		if decode != nil {
			var err error
			if req, err = decode(r); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
		}
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

		resp, err := e(ctx, req)
		switch {
		case errors.Is(err, store.ErrEmptyCode):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
