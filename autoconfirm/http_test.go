package autoconfirm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/history"
	"github.com/hazyhaar/autoconfirm/bus"
	"github.com/hazyhaar/autoconfirm/rules"
)

func testServer(t *testing.T) (*Daemon, *httptest.Server) {
	t.Helper()
	d := testDaemon(t)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return d, srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestHTTP_Health(t *testing.T) {
	_, srv := testServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d, want 200", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`"ok"`)) {
		t.Errorf("got %s", body)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q, want %q", got, "nosniff")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestHTTP_TemplateCRUD(t *testing.T) {
	_, srv := testServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/templates",
		`{"name":"Drop","matcher":{"inputClassPattern":"danger"},"fillValue":"DROP"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: got %d (%s), want 201", resp.StatusCode, body)
	}
	var added rules.Template
	if err := json.Unmarshal(body, &added); err != nil {
		t.Fatal(err)
	}
	if !added.Enabled || added.FillValue != "DROP" {
		t.Fatalf("got %+v", added)
	}

	resp, body = do(t, http.MethodPatch, srv.URL+"/api/templates/"+added.ID, `{"name":"Drop it"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: got %d (%s), want 200", resp.StatusCode, body)
	}
	var updated rules.Template
	json.Unmarshal(body, &updated)
	if updated.Name != "Drop it" || updated.FillValue != "DROP" {
		t.Errorf("got %+v, want merged update", updated)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/templates/"+added.ID+"/toggle", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: got %d (%s), want 200", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/templates", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: got %d, want 200", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/templates/"+added.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: got %d, want 200", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/templates/"+added.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: got %d, want 404", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/templates/reset", "")
	var tpls []rules.Template
	json.Unmarshal(body, &tpls)
	if resp.StatusCode != http.StatusOK || len(tpls) != 4 {
		t.Fatalf("reset: got %d with %d templates, want 200 with 4", resp.StatusCode, len(tpls))
	}
}

func TestHTTP_BadBody(t *testing.T) {
	_, srv := testServer(t)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/templates", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/templates", `{"fillValue":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing name: got %d, want 400", resp.StatusCode)
	}
}

func TestHTTP_Settings(t *testing.T) {
	d, srv := testServer(t)
	resp, _ := do(t, http.MethodPut, srv.URL+"/api/settings",
		`{"genericEngines":{"placeholder":false,"label":true,"quotedText":true,"dialogPattern":true},"update":{"releasesUrl":"https://github.com/o/r/releases"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d, want 200", resp.StatusCode)
	}
	st, err := d.store.Settings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.GenericEngines.Placeholder || st.Update.ReleasesURL != "https://github.com/o/r/releases" {
		t.Errorf("got %+v", st)
	}

	_, body := do(t, http.MethodGet, srv.URL+"/api/settings", "")
	if !bytes.Contains(body, []byte(`"placeholder":false`)) {
		t.Errorf("got %s, want saved settings", body)
	}
}

func TestHTTP_TriggerAndPages(t *testing.T) {
	d, srv := testServer(t)
	p := newFakePage(t, "https://db.example.com/", quotedDialog)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fill", func() bool { return len(p.filled()) > 0 })

	resp, body := do(t, http.MethodPost, srv.URL+"/api/trigger", `{"page_id":"p1"}`)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"success":true,"filled":false`)) {
		t.Fatalf("got %d %s, want 200 acknowledged without a fill", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/trigger", `{"page_id":"missing"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown page: got %d, want 404", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/trigger", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("all pages: got %d, want 200", resp.StatusCode)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/pages", "")
	var st []PageStatus
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if len(st) != 1 || st[0].ID != "p1" {
		t.Fatalf("got %+v, want p1", st)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/pages/p1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close: got %d, want 200", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/pages", `{"id":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("open without url: got %d, want 400", resp.StatusCode)
	}
}

func TestHTTP_DryRun(t *testing.T) {
	_, srv := testServer(t)
	payload, _ := json.Marshal(dryRunRequest{URL: "https://db.example.com/", HTML: quotedDialog})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/dry-run", string(payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d (%s), want 200", resp.StatusCode, body)
	}
	var res DryRunResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if !res.WouldFill || res.Result.Value != "prod-db" {
		t.Errorf("got %+v, want prod-db", res)
	}
}

func TestHTTP_BusEndpoint(t *testing.T) {
	_, srv := testServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/bus/"+bus.ServicePing, "")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"ok":true`)) {
		t.Fatalf("got %d %s, want ok", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/bus/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown service: got %d, want 404", resp.StatusCode)
	}
}

func TestHTTP_History(t *testing.T) {
	d, srv := testServer(t)
	p := newFakePage(t, "https://db.example.com/", quotedDialog)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}

	var entries []history.Entry
	waitFor(t, "history entry", func() bool {
		resp, body := do(t, http.MethodGet, srv.URL+"/api/history?page_id=p1&limit=10", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got %d (%s), want 200", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &entries); err != nil {
			t.Fatal(err)
		}
		return len(entries) > 0
	})
	if entries[0].PageID != "p1" || entries[0].Value != "prod-db" {
		t.Errorf("got %+v, want prod-db on p1", entries[0])
	}

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/history?limit=x", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: got %d, want 400", resp.StatusCode)
	}
}
