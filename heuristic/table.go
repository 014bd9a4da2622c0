// CLAUDE:SUMMARY Loads the swappable confirmation-phrase pattern table from YAML and compiles it.
package heuristic

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// tableFile is the YAML layout of a pattern table.
type tableFile struct {
	ConfirmDialog     []string `yaml:"confirm_dialog"`
	Extract           []string `yaml:"extract"`
	Quoted            string   `yaml:"quoted"`
	Prompt            []string `yaml:"prompt"`
	GenericPrompts    []string `yaml:"generic_prompts"`
	ContextAttributes []string `yaml:"context_attributes"`
	HiddenFieldHints  []string `yaml:"hidden_field_hints"`
	LabelEmphasis     []string `yaml:"label_emphasis"`
}

// Table is a compiled pattern table. It is immutable and safe for
// concurrent use.
type Table struct {
	confirmDialog     []*regexp.Regexp
	extract           []*regexp.Regexp
	quoted            *regexp.Regexp
	prompt            []*regexp.Regexp
	genericPrompts    []*regexp.Regexp
	contextAttributes []string
	hiddenFieldHints  []string
	labelEmphasis     map[string]bool
}

// ParseTable compiles a YAML pattern table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("heuristic: parse table: %w", err)
	}
	t := &Table{labelEmphasis: make(map[string]bool)}
	var err error
	if t.confirmDialog, err = compileAll("confirm_dialog", f.ConfirmDialog); err != nil {
		return nil, err
	}
	if t.extract, err = compileAll("extract", f.Extract); err != nil {
		return nil, err
	}
	if t.prompt, err = compileAll("prompt", f.Prompt); err != nil {
		return nil, err
	}
	if t.genericPrompts, err = compileAll("generic_prompts", f.GenericPrompts); err != nil {
		return nil, err
	}
	if f.Quoted != "" {
		if t.quoted, err = regexp.Compile(f.Quoted); err != nil {
			return nil, fmt.Errorf("heuristic: quoted: %w", err)
		}
	}
	for _, a := range f.ContextAttributes {
		t.contextAttributes = append(t.contextAttributes, strings.ToLower(strings.TrimSpace(a)))
	}
	for _, h := range f.HiddenFieldHints {
		t.hiddenFieldHints = append(t.hiddenFieldHints, strings.ToLower(strings.TrimSpace(h)))
	}
	for _, tag := range f.LabelEmphasis {
		t.labelEmphasis[strings.ToLower(strings.TrimSpace(tag))] = true
	}
	return t, nil
}

// LoadTableFile reads and compiles a YAML pattern table from disk.
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("heuristic: read table: %w", err)
	}
	return ParseTable(data)
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultPatterns)
	if err != nil {
		panic("heuristic: built-in pattern table: " + err.Error())
	}
	return t
}

func compileAll(section string, exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for i, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("heuristic: %s[%d]: %w", section, i, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// IsConfirmDialog reports whether text reads like a confirmation dialog.
func (t *Table) IsConfirmDialog(text string) bool {
	for _, re := range t.confirmDialog {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsGenericPrompt reports whether s is a prompt rather than an answer.
func (t *Table) IsGenericPrompt(s string) bool {
	for _, re := range t.genericPrompts {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// firstCapture returns the first non-empty trimmed group-1 capture of the
// patterns, in pattern order, whose rune length lies in [minLen, maxLen].
// maxLen <= 0 means unbounded.
func firstCapture(patterns []*regexp.Regexp, text string, minLen, maxLen int) string {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			if v := strings.TrimSpace(m[1]); inBounds(v, minLen, maxLen) {
				return v
			}
		}
	}
	return ""
}

func inBounds(v string, minLen, maxLen int) bool {
	n := len([]rune(v))
	if n == 0 || n < minLen {
		return false
	}
	return maxLen <= 0 || n <= maxLen
}
