package netguard

import (
	"errors"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	noDNS := func(string) ([]string, error) { return nil, errors.New("no dns in tests") }
	p := Policy{Resolve: noDNS}
	cases := []struct {
		url  string
		want error
	}{
		{"https://github.com/x/y/releases", nil},
		{"ftp://example.com/file", ErrScheme},
		{"http://127.0.0.1:8080/bus", ErrPrivateAddress},
		{"http://[::1]/", ErrPrivateAddress},
		{"http://10.1.2.3/", ErrPrivateAddress},
		{"http://192.168.0.5/", ErrPrivateAddress},
		{"http://169.254.169.254/latest/meta-data", ErrPrivateAddress},
		{"http://8.8.8.8/", nil},
	}
	for _, c := range cases {
		if err := p.Check(c.url); !errors.Is(err, c.want) {
			t.Errorf("Check(%q): got %v, want %v", c.url, err, c.want)
		}
	}
}

func TestCheck_ResolvedPrivate(t *testing.T) {
	p := Policy{Resolve: func(string) ([]string, error) { return []string{"93.184.216.34", "10.0.0.1"}, nil }}
	if err := p.Check("https://rebind.example/"); !errors.Is(err, ErrPrivateAddress) {
		t.Fatalf("got %v, want ErrPrivateAddress", err)
	}
}

func TestCheck_AllowPrivate(t *testing.T) {
	if err := (Policy{AllowPrivate: true}).Check("http://127.0.0.1:9/"); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
	if err := (Policy{AllowPrivate: true}).Check("file:///etc/passwd"); !errors.Is(err, ErrScheme) {
		t.Fatalf("got %v, want ErrScheme", err)
	}
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := ReadLimited(strings.NewReader("hello!"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}
