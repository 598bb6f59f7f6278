package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	gojson "github.com/goccy/go-json"
	"gocloud.dev/blob"

	"github.com/getsentry/calltree/internal/calltree"
	"github.com/getsentry/calltree/internal/storageprovider"
	"github.com/getsentry/calltree/internal/testutil"
)

func newTestEnvironment(t *testing.T) (*environment, http.Handler) {
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("we should be able to open a bucket: %v", err)
	}
	t.Cleanup(func() { _ = bucket.Close() })
	env := &environment{
		bucket:  bucket,
		storage: &storageprovider.Blob{Bucket: bucket},
	}
	handler, err := env.newHandler()
	if err != nil {
		t.Fatalf("we should be able to create a router: %v", err)
	}
	return env, handler
}

func tickClock() calltree.Clock {
	var now int64
	return func() int64 {
		now++
		return now
	}
}

func testTree() *calltree.Tree {
	tree := calltree.NewTree("worker 1")
	tree.SetClock(tickClock())
	a, _ := tree.BeginCall("a", 1)
	for i := 0; i < 2; i++ {
		b, _ := tree.BeginCall("b", i)
		_ = b.End()
	}
	_ = a.End()
	return tree
}

func do(handler http.Handler, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestGetHealth(t *testing.T) {
	_, handler := newTestEnvironment(t)
	if w := do(handler, http.MethodGet, "/health", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", w.Code)
	}
}

func TestPostTree(t *testing.T) {
	tree := testTree()
	text := calltree.Encode(tree)

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, _ = bw.Write([]byte(text))
	_ = bw.Close()

	tests := []struct {
		name   string
		body   []byte
		header http.Header
		want   int
	}{
		{name: "plain", body: []byte(text), want: http.StatusCreated},
		{name: "brotli", body: compressed.Bytes(), header: http.Header{"Content-Encoding": {"br"}}, want: http.StatusCreated},
		{name: "corrupted", body: []byte(strings.Replace(text, "b{0}", "b{9}", 1)), want: http.StatusBadRequest},
		{name: "empty", body: nil, want: http.StatusBadRequest},
		{name: "unsupported encoding", body: []byte(text), header: http.Header{"Content-Encoding": {"deflate"}}, want: http.StatusUnsupportedMediaType},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env, handler := newTestEnvironment(t)
			w := do(handler, http.MethodPost, "/trees", test.body, test.header)
			if w.Code != test.want {
				t.Fatalf("got status %d, want %d: %s", w.Code, test.want, w.Body.String())
			}
			exists, err := env.bucket.Exists(context.Background(), "worker 1.tree")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exists != (test.want == http.StatusCreated) {
				t.Fatalf("tree stored: %v", exists)
			}
			if test.want != http.StatusCreated {
				return
			}
			var got PostTreeResponse
			if err := gojson.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(got, PostTreeResponse{Name: "worker 1", Nodes: 4}); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestGetTree(t *testing.T) {
	_, handler := newTestEnvironment(t)
	text := calltree.Encode(testTree())
	if w := do(handler, http.MethodPost, "/trees", []byte(text), nil); w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201", w.Code)
	}

	w := do(handler, http.MethodGet, "/trees/"+url.PathEscape("worker 1"), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	if w.Body.String() != text {
		t.Fatalf("got:\n%s\nwant:\n%s", w.Body.String(), text)
	}

	if w := do(handler, http.MethodGet, "/trees/missing", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestGetTreeFunctions(t *testing.T) {
	_, handler := newTestEnvironment(t)
	text := calltree.Encode(testTree())
	if w := do(handler, http.MethodPost, "/trees", []byte(text), nil); w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201", w.Code)
	}

	tests := []struct {
		name  string
		query string
		want  []string
		code  int
	}{
		{name: "all", want: []string{"a", "b", "worker 1"}, code: http.StatusOK},
		{name: "limited", query: "?limit=1", want: []string{"a"}, code: http.StatusOK},
		{name: "invalid limit", query: "?limit=-1", code: http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := do(handler, http.MethodGet, "/trees/"+url.PathEscape("worker 1")+"/functions"+test.query, nil, nil)
			if w.Code != test.code {
				t.Fatalf("got status %d, want %d", w.Code, test.code)
			}
			if test.code != http.StatusOK {
				return
			}
			var got GetFunctionsResponse
			if err := gojson.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			names := make([]string, 0, len(got.Functions))
			for _, f := range got.Functions {
				names = append(names, f.Name)
			}
			if diff := testutil.Diff(names, test.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}

	w := do(handler, http.MethodGet, "/trees/missing/functions", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}
