package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/calltree/internal/calltree"
	"github.com/getsentry/calltree/internal/httputil"
	"github.com/getsentry/calltree/internal/metrics"
	"github.com/getsentry/calltree/internal/storageutil"
)

const (
	maxTreeSize          = 32 << 20
	defaultFunctionLimit = 100
)

type (
	PostTreeResponse struct {
		Name  string `json:"name"`
		Nodes int    `json:"nodes"`
	}

	GetFunctionsResponse struct {
		Functions []metrics.FunctionMetrics `json:"functions"`
	}
)

func (env *environment) postTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Read HTTP body"
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTreeSize))
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s = sentry.StartSpan(ctx, "calltree.decode")
	s.Description = "Decode and verify tree"
	tree, err := calltree.Decode(string(body))
	s.Finish()
	if err != nil {
		if errors.Is(err, calltree.ErrFileParse) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	nodes := len(tree.Nodes())
	hub.Scope().SetContext("Tree", map[string]interface{}{
		"name":  tree.Name(),
		"nodes": nodes,
		"size":  len(body),
	})

	s = sentry.StartSpan(ctx, "blob.write")
	s.Description = "Write tree to storage"
	err = storageutil.WriteTree(ctx, env.storage, storageutil.TreeObjectName(tree, false), tree)
	s.Finish()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// This is a transient error, we'll retry
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	log.Debug().Str("tree", tree.Name()).Int("nodes", nodes).Msg("tree stored")
	writeJSON(w, hub, http.StatusCreated, PostTreeResponse{Name: tree.Name(), Nodes: nodes})
}

func (env *environment) getTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	name := ps.ByName("name")

	hub.Scope().SetTag("tree", name)

	s := sentry.StartSpan(ctx, "blob.read")
	s.Description = "Read tree from storage"
	defer s.Finish()

	or, err := env.storage.Get(ctx, name+storageutil.TreeExtension)
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer or.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, or); err != nil {
		hub.CaptureException(err)
	}
}

func (env *environment) getTreeFunctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	name := ps.ByName("name")

	hub.Scope().SetTag("tree", name)

	limit, ok := httputil.GetLimitParameter(w, r, "limit", defaultFunctionLimit)
	if !ok {
		return
	}

	s := sentry.StartSpan(ctx, "blob.read")
	s.Description = "Read and decode tree"
	tree, err := storageutil.ReadTree(ctx, env.storage, name+storageutil.TreeExtension)
	s.Finish()
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Aggregate functions"
	ma := metrics.NewAggregator(uint(limit), 1)
	ma.AddTree(tree)
	functions := ma.ToMetrics()
	s.Finish()

	writeJSON(w, hub, http.StatusOK, GetFunctionsResponse{Functions: functions})
}

func writeJSON(w http.ResponseWriter, hub *sentry.Hub, status int, v interface{}) {
	b, err := gojson.Marshal(v)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
