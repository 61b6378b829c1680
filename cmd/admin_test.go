package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeAdminServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/api/admin/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":true,"phase":"playing"}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestAdminClient(t *testing.T) {
	ts := fakeAdminServer(t)

	t.Run("address without scheme", func(t *testing.T) {
		c := newAdminClient("localhost:8080/")
		if c.base != "http://localhost:8080/api/admin" {
			t.Errorf("expected http://localhost:8080/api/admin, got %s", c.base)
		}
	})

	t.Run("login and call", func(t *testing.T) {
		c := newAdminClient(ts.URL)
		token, err := c.login("pw")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		out, err := c.call(http.MethodGet, "/status", token)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if !strings.Contains(out, `"phase": "playing"`) {
			t.Errorf("expected indented status, got %s", out)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		c := newAdminClient(ts.URL)
		if _, err := c.login("bad"); err == nil {
			t.Error("expected login error")
		}
	})

	t.Run("bad token", func(t *testing.T) {
		c := newAdminClient(ts.URL)
		if _, err := c.call(http.MethodGet, "/status", "bad"); err == nil {
			t.Error("expected unauthorized error")
		}
	})
}

func TestAdminCommand(t *testing.T) {
	ts := fakeAdminServer(t)
	adminAddr, adminPassword = ts.URL, "pw"
	t.Cleanup(func() { adminAddr, adminPassword = "http://localhost:8080", "" })

	cmd := adminCommand(adminOps[0])
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "running") {
		t.Errorf("expected status output, got %q", buf.String())
	}
}
