// CLAUDE:SUMMARY Template, Matcher and Settings records plus the built-in defaults materialised on first read.
// Package rules holds the declarative auto-fill templates and the page-level
// matcher that picks which template applies to a page.
//
// Templates are pure data: a conjunctive matcher over the page and a literal
// value to type. An empty FillValue defers to the heuristic extractor.
package rules

import "time"

// Storage keys under which templates and settings are persisted.
const (
	TemplatesKey = "auto_confirm_templates"
	SettingsKey  = "auto_confirm_settings"
)

// ReleasesURL is the default location checked for new releases.
const ReleasesURL = "https://github.com/xinxinsuried/suried-auto-confirm-input-helper/releases"

// Template pairs a matcher with the literal to auto-fill.
type Template struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Enabled     bool    `json:"enabled"`
	Matcher     Matcher `json:"matcher"`
	FillValue   string  `json:"fillValue"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// Matcher is a conjunctive set of optional predicates. An empty field means
// "don't care".
type Matcher struct {
	URLPattern            string   `json:"urlPattern,omitempty"`
	ContainsText          []string `json:"containsText,omitempty"`
	PlaceholderPattern    string   `json:"placeholderPattern,omitempty"`
	InputClassPattern     string   `json:"inputClassPattern,omitempty"`
	ContainerClassPattern string   `json:"containerClassPattern,omitempty"`
}

// HasElementPredicates reports whether the matcher constrains the element
// itself. Matchers without element predicates only fire inside dialogs.
func (m Matcher) HasElementPredicates() bool {
	return m.PlaceholderPattern != "" || m.InputClassPattern != "" || m.ContainerClassPattern != ""
}

// GenericEngines toggles the heuristic extraction tiers.
type GenericEngines struct {
	Placeholder   bool `json:"placeholder"`
	Label         bool `json:"label"`
	QuotedText    bool `json:"quotedText"`
	DialogPattern bool `json:"dialogPattern"`
}

// UpdateSettings configures the release check.
type UpdateSettings struct {
	ReleasesURL string `json:"releasesUrl"`
}

// Settings is the persisted engine configuration.
type Settings struct {
	GenericEngines GenericEngines `json:"genericEngines"`
	Update         UpdateSettings `json:"update"`
}

// DefaultSettings enables every engine.
func DefaultSettings() Settings {
	return Settings{
		GenericEngines: GenericEngines{
			Placeholder:   true,
			Label:         true,
			QuotedText:    true,
			DialogPattern: true,
		},
		Update: UpdateSettings{ReleasesURL: ReleasesURL},
	}
}

// DefaultTemplates returns the built-in templates stamped with now.
func DefaultTemplates(now time.Time) []Template {
	ts := now.UnixMilli()
	stamp := func(t Template) Template {
		t.Enabled = true
		t.CreatedAt = ts
		t.UpdatedAt = ts
		return t
	}
	return []Template{
		stamp(Template{
			ID:          "tencent-cloud-delete-key",
			Name:        "Tencent Cloud - delete API key",
			Description: "Confirmation phrase required to delete a CAM API key",
			Matcher: Matcher{
				ContainsText:          []string{"删除此密钥后无法再恢复", "腾讯云将永久拒绝此密钥的所有请求"},
				PlaceholderPattern:    "已知晓删除密钥后无法再恢复并确认删除",
				InputClassPattern:     "app-cam-input",
				ContainerClassPattern: "app-cam-dialog__body",
			},
			FillValue: "已知晓删除密钥后无法再恢复并确认删除",
		}),
		stamp(Template{
			ID:          "tencent-cloud-delete-resource",
			Name:        "Tencent Cloud - delete resource",
			Description: "Generic 确认删除 prompt",
			Matcher: Matcher{
				ContainsText:       []string{"确认删除"},
				PlaceholderPattern: "确认删除",
			},
			FillValue: "确认删除",
		}),
		stamp(Template{
			ID:          "aliyun-delete-confirm",
			Name:        "Aliyun - delete confirmation",
			Description: "Aliyun console delete dialogs",
			Matcher: Matcher{
				URLPattern:   "*aliyun.com*",
				ContainsText: []string{"请输入", "确认删除"},
			},
			FillValue: "确认删除",
		}),
		stamp(Template{
			ID:          "github-delete-repo",
			Name:        "GitHub - delete repository",
			Description: "Repository name is inferred from the dialog",
			Matcher: Matcher{
				URLPattern:   "*github.com*",
				ContainsText: []string{"delete this repository", "please type"},
			},
		}),
	}
}
