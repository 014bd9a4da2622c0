package dom

import (
	"strings"
)

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"dialog": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "nav": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

var skipTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "noscript": true,
	"input": true, "textarea": true, "select": true,
}

// Text returns the rendered text of n, approximating innerText: hidden
// subtrees are skipped, block elements and <br> break lines, whitespace runs
// collapse, shadow content is included in place of the host's light children
// when the host has a shadow root.
func Text(n *Node) string {
	var lines []string
	var cur strings.Builder
	flush := func() {
		line := strings.TrimSpace(cur.String())
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(*Node)
	walk = func(c *Node) {
		switch c.Type {
		case TextNode:
			cur.WriteString(collapseSpace(c.Text))
			return
		case ElementNode:
			if skipTags[c.Tag] || SelfHidden(c) {
				return
			}
			if c.Tag == "br" {
				flush()
				return
			}
			if c.Tag == "slot" {
				if host := shadowHost(c); host != nil {
					name := c.AttrOr("name")
					for _, lc := range host.Children {
						if lc.AttrOr("slot") == name {
							walk(lc)
						}
					}
					return
				}
			}
		}
		block := c.Type == ElementNode && blockTags[c.Tag]
		if block {
			flush()
		}
		if c.Shadow != nil {
			walk(c.Shadow)
		} else {
			for _, cc := range c.Children {
				walk(cc)
			}
		}
		if block {
			flush()
		}
	}
	walk(n)
	flush()
	return strings.Join(lines, "\n")
}

// SelfHidden reports whether n's own style removes it from rendering. It does
// not look at ancestors.
func SelfHidden(n *Node) bool {
	if n.Type != ElementNode {
		return false
	}
	if n.HasAttr("hidden") {
		return true
	}
	if n.Style == nil {
		return false
	}
	switch n.Style.Display {
	case "none":
		return true
	}
	switch n.Style.Visibility {
	case "hidden", "collapse":
		return true
	}
	return false
}

// shadowHost returns the host of the shadow tree containing n, if any.
func shadowHost(n *Node) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == ShadowRootNode {
			return p.Host
		}
	}
	return nil
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}
