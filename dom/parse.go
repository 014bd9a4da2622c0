package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Parse builds a snapshot from HTML. Declarative shadow roots
// (<template shadowrootmode="open">) become shadow roots of their parent.
// Inline style declarations and the hidden attribute feed Style; no layout
// information is available, so HasBox is always false.
func Parse(r io.Reader) (*Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	root := &Node{Type: DocumentNode}
	convertChildren(doc, root)
	return root, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

func convertChildren(src *html.Node, dst *Node) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			dst.Children = append(dst.Children, &Node{Type: TextNode, Text: c.Data, Parent: dst})
		case html.ElementNode:
			if c.Data == "template" && dst.Type == ElementNode && hasHTMLAttr(c, "shadowrootmode") {
				if dst.Shadow == nil {
					sr := &Node{Type: ShadowRootNode, Host: dst}
					convertChildren(c, sr)
					dst.Shadow = sr
				}
				continue
			}
			el := convertElement(c)
			el.Parent = dst
			dst.Children = append(dst.Children, el)
		case html.DocumentNode:
			convertChildren(c, dst)
		}
	}
}

func convertElement(src *html.Node) *Node {
	n := &Node{Type: ElementNode, Tag: strings.ToLower(src.Data), Attrs: make(map[string]string, len(src.Attr))}
	for _, a := range src.Attr {
		n.Attrs[strings.ToLower(a.Key)] = a.Val
	}
	convertChildren(src, n)

	n.Style = inlineStyle(n)
	switch {
	case n.Tag == "input":
		n.Value = n.AttrOr("value")
	case n.Tag == "textarea":
		n.Value = rawText(n)
	case isContentEditable(n):
		n.Value = strings.TrimSpace(rawText(n))
	}
	return n
}

func hasHTMLAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func isContentEditable(n *Node) bool {
	v, ok := n.Attr("contenteditable")
	if !ok {
		return false
	}
	v = strings.ToLower(v)
	return v == "" || v == "true" || v == "plaintext-only"
}

// inlineStyle derives a Style from the style attribute and hidden flag.
// Returns nil when neither is present.
func inlineStyle(n *Node) *Style {
	decl, hasStyle := n.Attr("style")
	hidden := n.HasAttr("hidden")
	if !hasStyle && !hidden {
		return nil
	}
	st := &Style{Opacity: 1}
	if hidden {
		st.Display = "none"
	}
	for _, part := range strings.Split(decl, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important")))
		switch k {
		case "display":
			st.Display = v
		case "visibility":
			st.Visibility = v
		case "opacity":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				st.Opacity = f
			}
		}
	}
	return st
}

// rawText concatenates light-tree text, like textContent.
func rawText(n *Node) string {
	var b strings.Builder
	var walk func(*Node)
	walk = func(c *Node) {
		if c.Type == TextNode {
			b.WriteString(c.Text)
		}
		for _, cc := range c.Children {
			walk(cc)
		}
	}
	walk(n)
	return b.String()
}
