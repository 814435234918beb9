package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/yndnr/meshkv/internal/server/httpserver/handler"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name   string
		server string
		want   string
	}{
		{"with http prefix", "http://localhost:5180", "http://localhost:5180"},
		{"with https prefix", "https://localhost:5180", "https://localhost:5180"},
		{"without prefix", "localhost:5180", "http://localhost:5180"},
		{"trailing slash", "http://node-a:5180/", "http://node-a:5180"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewHTTPClient(tt.server).BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewHTTPClient_TLS(t *testing.T) {
	if got := NewHTTPClient("localhost:5180", WithTLSConfig(&tls.Config{})).BaseURL(); got != "https://localhost:5180" {
		t.Errorf("BaseURL() = %q, want https scheme", got)
	}
	if got := NewHTTPClient("localhost:5180", WithTLSConfig(nil)).BaseURL(); got != "http://localhost:5180" {
		t.Errorf("BaseURL() with nil config = %q, want http scheme", got)
	}

	srv := httptest.NewTLSServer(kvServer(t).Config.Handler)
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	client := NewHTTPClient(srv.Listener.Addr().String(), WithTLSConfig(&tls.Config{RootCAs: pool}))

	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() over TLS error = %v", err)
	}
	if st.NodeID != "node-a" {
		t.Errorf("NodeID = %q", st.NodeID)
	}

	if _, err := NewHTTPClient(srv.Listener.Addr().String()).Status(context.Background()); err == nil {
		t.Error("plain HTTP against a TLS server should fail")
	}
}

// kvServer is a minimal stand-in for a node's /v1 API.
func kvServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	data := map[string]string{"color": "blue"}

	reply := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, handler.NewResponse("r1", handler.StatusResponse{NodeID: "node-a", Mode: "create", State: "steady", Peers: 2}))
	})
	mux.HandleFunc("GET /v1/kv", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		reply(w, http.StatusOK, handler.NewResponse("r2", handler.KVResponse{Count: len(data), Entries: data}))
	})
	mux.HandleFunc("GET /v1/kv/{key}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		v, ok := data[r.PathValue("key")]
		if !ok {
			reply(w, http.StatusNotFound, handler.NewErrorResponse("r3", "MK-STORE-4040", "key not found"))
			return
		}
		reply(w, http.StatusOK, handler.NewResponse("r3", handler.EntryResponse{Key: r.PathValue("key"), Value: v}))
	})
	mux.HandleFunc("PUT /v1/kv/{key}", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req handler.PutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		data[r.PathValue("key")] = req.Value
		mu.Unlock()
		reply(w, http.StatusOK, handler.NewResponse("r4", handler.EntryResponse{Key: r.PathValue("key"), Value: req.Value}))
	})
	mux.HandleFunc("DELETE /v1/kv/{key}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		delete(data, r.PathValue("key"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_Status(t *testing.T) {
	c := NewHTTPClient(kvServer(t).URL)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.NodeID != "node-a" || st.State != "steady" || st.Peers != 2 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestHTTPClient_KV(t *testing.T) {
	ctx := context.Background()
	c := NewHTTPClient(kvServer(t).URL)

	if v, err := c.Get(ctx, "color"); err != nil || v != "blue" {
		t.Fatalf("Get(color) = %q, %v", v, err)
	}
	if err := c.Put(ctx, "size", "xl"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	all, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all["size"] != "xl" {
		t.Errorf("List() = %v", all)
	}
	if err := c.Delete(ctx, "size"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err = c.Get(ctx, "size")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Get(deleted) error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "MK-STORE-4040" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestHTTPClient_UserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, `{"code":"OK","data":{}}`)
	}))
	defer srv.Close()

	if _, err := NewHTTPClient(srv.URL).Status(context.Background()); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !strings.HasPrefix(ua, "meshkv-node/") {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  bool
		wantCode string
	}{
		{"success", http.StatusOK, `{"code":"OK","data":{"key":"a","value":"1"}}`, false, ""},
		{"no content", http.StatusNoContent, ``, false, ""},
		{"error envelope", http.StatusForbidden, `{"code":"MK-STORE-4030","message":"denied"}`, true, "MK-STORE-4030"},
		{"error without body", http.StatusBadGateway, `not json`, true, ""},
		{"malformed success", http.StatusOK, `{`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			var out handler.EntryResponse
			err := ParseResponse(resp, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if tt.name == "success" && out.Value != "1" {
				t.Errorf("decoded value = %q, want 1", out.Value)
			}
		})
	}
}
