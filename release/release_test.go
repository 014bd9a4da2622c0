package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/autoconfirm/netguard"
)

func TestAPIURL(t *testing.T) {
	got, err := APIURL("https://github.com/xinxinsuried/suried-auto-confirm-input-helper/releases", "")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://api.github.com/repos/xinxinsuried/suried-auto-confirm-input-helper/releases/latest"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	for _, bad := range []string{"https://gitlab.com/a/b/releases", "https://github.com/onlyowner", "::"} {
		if _, err := APIURL(bad, ""); err == nil {
			t.Errorf("APIURL(%q): expected error", bad)
		}
	}
}

func TestNewer(t *testing.T) {
	cases := []struct {
		current, tag string
		want         bool
	}{
		{"v1.0.0", "v1.0.1", true},
		{"1.2.0", "v1.10.0", true},
		{"v2.0.0", "v1.9.9", false},
		{"v1.0.0", "v1.0.0", false},
		{"dev", "v0.1.0", true},
		{"v1.0.0", "nightly", false},
	}
	for _, c := range cases {
		if got := Newer(c.current, c.tag); got != c.want {
			t.Errorf("Newer(%q, %q): got %v, want %v", c.current, c.tag, got, c.want)
		}
	}
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/tool/releases/latest" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"tag_name":"v1.3.0","name":"1.3","html_url":"https://github.com/acme/tool/releases/tag/v1.3.0","published_at":"2026-09-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	c := &Checker{Current: "v1.2.0", APIBase: srv.URL, Policy: netguard.Policy{AllowPrivate: true}}
	info, err := c.Check(context.Background(), "https://github.com/acme/tool/releases")
	if err != nil {
		t.Fatal(err)
	}
	if !info.UpdateAvailable || info.Latest.Tag != "v1.3.0" {
		t.Fatalf("got %+v, want update to v1.3.0", info)
	}
	if info.Latest.PublishedAt.Year() != 2026 {
		t.Errorf("published_at: got %v", info.Latest.PublishedAt)
	}

	if _, err := c.Check(context.Background(), "https://github.com/acme/other/releases"); err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("got %v, want status 404", err)
	}
}

func TestLatest_PrivateBlocked(t *testing.T) {
	c := &Checker{APIBase: "http://127.0.0.1:9"}
	_, err := c.Latest(context.Background(), "https://github.com/a/b/releases")
	if !errors.Is(err, netguard.ErrPrivateAddress) {
		t.Fatalf("got %v, want ErrPrivateAddress", err)
	}
}

func TestLatest_OversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", int(netguard.MaxBody)+10)))
	}))
	defer srv.Close()
	c := &Checker{APIBase: srv.URL, Policy: netguard.Policy{AllowPrivate: true}}
	if _, err := c.Latest(context.Background(), "https://github.com/a/b/releases"); !errors.Is(err, netguard.ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}
