// Package release checks the project's GitHub releases page for a newer
// version than the running binary.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/hazyhaar/autoconfirm/netguard"
)

// ErrNotGitHub is returned for releases URLs outside github.com.
var ErrNotGitHub = errors.New("release: not a github.com releases URL")

// Release is the subset of the GitHub release object the checker uses.
type Release struct {
	Tag         string    `json:"tag_name"`
	Name        string    `json:"name"`
	URL         string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
	Prerelease  bool      `json:"prerelease"`
}

// Info is the result of a check.
type Info struct {
	Current         string  `json:"current"`
	Latest          Release `json:"latest"`
	UpdateAvailable bool    `json:"update_available"`
	ReleasesURL     string  `json:"releases_url"`
}

// Checker queries the GitHub API.
type Checker struct {
	// Current is the running version ("v1.2.3"; anything else counts as
	// older than every release).
	Current string
	// APIBase defaults to https://api.github.com.
	APIBase string
	Client  *http.Client
	Policy  netguard.Policy
	Logger  *slog.Logger
}

// APIURL maps https://github.com/{owner}/{repo}/releases to the API's
// latest-release endpoint under base.
func APIURL(releasesURL, base string) (string, error) {
	u, err := url.Parse(releasesURL)
	if err != nil {
		return "", fmt.Errorf("release: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return "", ErrNotGitHub
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrNotGitHub
	}
	if base == "" {
		base = "https://api.github.com"
	}
	return fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(base, "/"),
		url.PathEscape(parts[0]), url.PathEscape(parts[1])), nil
}

// Latest fetches the latest published release.
func (c *Checker) Latest(ctx context.Context, releasesURL string) (Release, error) {
	api, err := APIURL(releasesURL, c.APIBase)
	if err != nil {
		return Release{}, err
	}
	if err := c.Policy.Check(api); err != nil {
		return Release{}, fmt.Errorf("release: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return Release{}, fmt.Errorf("release: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("release: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := netguard.ReadLimited(resp.Body, netguard.MaxBody)
	if err != nil {
		return Release{}, fmt.Errorf("release: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("release: %s: status %d", api, resp.StatusCode)
	}
	var r Release
	if err := json.Unmarshal(body, &r); err != nil {
		return Release{}, fmt.Errorf("release: decode: %w", err)
	}
	if r.Tag == "" {
		return Release{}, fmt.Errorf("release: %s: no tag in response", api)
	}
	return r, nil
}

// Check compares the latest release with Current.
func (c *Checker) Check(ctx context.Context, releasesURL string) (Info, error) {
	latest, err := c.Latest(ctx, releasesURL)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Current:         c.Current,
		Latest:          latest,
		UpdateAvailable: Newer(c.Current, latest.Tag),
		ReleasesURL:     releasesURL,
	}
	if c.Logger != nil {
		c.Logger.Info("release: checked", "current", c.Current, "latest", latest.Tag, "update", info.UpdateAvailable)
	}
	return info, nil
}

// Newer reports whether tag is a later version than current. Tags with or
// without a leading "v" are accepted; an unparsable current is older than
// any valid tag.
func Newer(current, tag string) bool {
	t := canonical(tag)
	if t == "" {
		return false
	}
	c := canonical(current)
	if c == "" {
		return true
	}
	return semver.Compare(t, c) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
