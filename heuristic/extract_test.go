package heuristic

import (
	"testing"

	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/rules"
)

var allEngines = rules.DefaultSettings().GenericEngines

func extractByID(t *testing.T, html, id string, engines rules.GenericEngines) (Result, bool) {
	t.Helper()
	root, err := dom.ParseString(html)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	el := dom.ElementByID(root, id)
	if el == nil {
		t.Fatalf("element %q not found", id)
	}
	return New().Extract(el, engines)
}

func TestExtract_ContextAttributeBeatsQuoted(t *testing.T) {
	html := `<div role="dialog"><p>This action cannot be undone. To confirm, type "DELETE" in the box below.</p>
<input id="in" data-repo-nwo="repo-x"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok {
		t.Fatal("no extraction")
	}
	if res.Value != "repo-x" || res.Tier != TierContext {
		t.Errorf("got %+v, want repo-x from context", res)
	}
}

func TestExtract_NotConfirmationDialog(t *testing.T) {
	html := `<div role="dialog"><p>Subscribe to our "Weekly" newsletter</p><input id="in" placeholder="Your name here"></div>`
	if res, ok := extractByID(t, html, "in", allEngines); ok {
		t.Fatalf("got %+v from a non-confirmation dialog", res)
	}
}

func TestExtract_OrdinaryPromptDialogs(t *testing.T) {
	cases := []struct{ name, html string }{
		{"rename", `<div role="dialog"><h3>Rename project</h3><p>Please enter a new name for the project.</p><input id="in" placeholder="my-project"></div>`},
		{"choose type", `<div class="modal"><p>Choose an account type to continue</p><input id="in" placeholder="Acme Inc"></div>`},
		{"please type", `<div role="dialog"><p>Please type your message.</p><input id="in" placeholder="Hello there"></div>`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if res, ok := extractByID(t, c.html, "in", allEngines); ok {
				t.Fatalf("got %+v from an ordinary dialog", res)
			}
		})
	}
}

func TestExtract_QuotedTypeToContinue(t *testing.T) {
	html := `<div role="dialog"><p>Type "archive-01" to continue.</p><input id="in"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "archive-01" {
		t.Fatalf("got %+v, %v, want archive-01", res, ok)
	}
}

func TestExtract_OutsideDialog(t *testing.T) {
	html := `<form><p>To confirm, type "DELETE" below.</p><input id="in"></form>`
	if res, ok := extractByID(t, html, "in", allEngines); ok {
		t.Fatalf("got %+v outside a dialog", res)
	}
}

func TestExtract_NonEmptyElement(t *testing.T) {
	html := `<div role="dialog"><p>To confirm, type "DELETE" in the box below.</p><input id="in" value="typed"></div>`
	if res, ok := extractByID(t, html, "in", allEngines); ok {
		t.Fatalf("got %+v for a non-empty element", res)
	}
}

func TestExtract_DialogTextPatterns(t *testing.T) {
	cases := []struct {
		name, text, want string
	}{
		{"github", `To confirm, type "octo/repo" in the box below`, "octo/repo"},
		{"type to confirm", `Please type “prod-db” to confirm.`, "prod-db"},
		{"unquoted", `Type DELETE to confirm. This cannot be undone.`, "DELETE"},
		{"chinese quoted", `请输入“my-bucket”以确认删除`, "my-bucket"},
		{"chinese unquoted", `此操作无法恢复，请输入 test-01 以确认`, "test-01"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			html := `<div class="modal"><p>` + c.text + `</p><input id="in"></div>`
			res, ok := extractByID(t, html, "in", allEngines)
			if !ok {
				t.Fatal("no extraction")
			}
			if res.Value != c.want {
				t.Errorf("got %q, want %q", res.Value, c.want)
			}
			if res.Tier != TierDialogText {
				t.Errorf("tier: got %q, want %q", res.Tier, TierDialogText)
			}
		})
	}
}

func TestExtract_HiddenField(t *testing.T) {
	html := `<div role="dialog"><p>This will permanently delete the instance.</p>
<input type="hidden" name="confirm_name" value="instance-7"><input id="in"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "instance-7" || res.Tier != TierContext {
		t.Fatalf("got %+v ok=%v, want instance-7 from context", res, ok)
	}
}

func TestExtract_HiddenFieldOutsideSiblingsIgnored(t *testing.T) {
	html := `<div role="dialog"><p>Type "prod-db" to confirm.</p><div><input id="in"></div>
<footer><input type="hidden" name="confirm_token" value="abc-123"></footer></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "prod-db" || res.Tier != TierDialogText {
		t.Fatalf("got %+v ok=%v, want prod-db from dialog text", res, ok)
	}
}

func TestExtract_HiddenFlagFieldIgnored(t *testing.T) {
	for _, v := range []string{"1", "true", "on"} {
		html := `<div role="dialog"><p>Type "prod-db" to confirm.</p>
<input type="hidden" name="confirmed" value="` + v + `"><input id="in"></div>`
		res, ok := extractByID(t, html, "in", allEngines)
		if !ok || res.Value != "prod-db" {
			t.Errorf("flag %q: got %+v ok=%v, want prod-db", v, res, ok)
		}
	}
}

func TestExtract_LabelEmphasis(t *testing.T) {
	html := `<div role="dialog"><p>This action is irreversible.</p>
<label for="in">Enter <code>cluster-a</code></label><input id="in"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "cluster-a" || res.Tier != TierContext {
		t.Fatalf("got %+v ok=%v, want cluster-a from context", res, ok)
	}
}

func TestExtract_PlaceholderAndDenyList(t *testing.T) {
	html := `<div role="dialog"><p>删除后无法恢复</p><input id="in" placeholder="DROP-TABLE"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "DROP-TABLE" || res.Tier != TierPlaceholder {
		t.Fatalf("got %+v ok=%v, want placeholder", res, ok)
	}

	html = `<div role="dialog"><p>删除后无法恢复</p><input id="in" placeholder="请输入名称"></div>`
	if res, ok := extractByID(t, html, "in", allEngines); ok && res.Tier == TierPlaceholder {
		t.Fatalf("generic prompt placeholder used: %+v", res)
	}

	off := allEngines
	off.Placeholder = false
	html = `<div role="dialog"><p>删除后无法恢复</p><input id="in" placeholder="DROP-TABLE"></div>`
	if res, ok := extractByID(t, html, "in", off); ok {
		t.Fatalf("placeholder engine disabled but got %+v", res)
	}
}

func TestExtract_Label(t *testing.T) {
	html := `<div role="dialog"><p>This action cannot be undone.</p><input id="in" aria-label='Name: "vol-9"'></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok {
		t.Fatal("no extraction")
	}
	if res.Value != "vol-9" || res.Tier != TierLabel {
		t.Errorf("got %+v, want vol-9 from label", res)
	}
}

func TestExtract_QuotedBounds(t *testing.T) {
	html := `<div role="dialog"><p>This action cannot be undone. Resource 「x」 and 「backup-2024」 will go.</p><input id="in"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "backup-2024" || res.Tier != TierQuoted {
		t.Fatalf("got %+v ok=%v, want backup-2024 quoted", res, ok)
	}

	off := allEngines
	off.QuotedText = false
	if res, ok := extractByID(t, html, "in", off); ok {
		t.Fatalf("quoted engine disabled but got %+v", res)
	}
}

func TestExtract_Prompt(t *testing.T) {
	html := `<div class="el-dialog"><p>资源删除后无法恢复，请输入：ns-prod，然后点击确定</p><input id="in"></div>`
	res, ok := extractByID(t, html, "in", allEngines)
	if !ok || res.Value != "ns-prod" || res.Tier != TierPrompt {
		t.Fatalf("got %+v ok=%v, want ns-prod from prompt", res, ok)
	}
}

func TestParseTable_Invalid(t *testing.T) {
	if _, err := ParseTable([]byte("confirm_dialog: ['(unclosed']")); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestParseTable_CustomTable(t *testing.T) {
	tbl, err := ParseTable([]byte(`
confirm_dialog: ['(?i)vahvista']
prompt: ['kirjoita\s+(\S+)']
`))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := dom.ParseString(`<div role="dialog"><p>vahvista: kirjoita POISTA</p><input id="in"></div>`)
	res, ok := New(WithTable(tbl)).Extract(dom.ElementByID(root, "in"), allEngines)
	if !ok || res.Value != "POISTA" {
		t.Fatalf("got %+v ok=%v, want POISTA", res, ok)
	}
}
