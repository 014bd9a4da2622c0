package dom

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wireNode is the JSON shape emitted by the in-page collector.
type wireNode struct {
	Type     NodeType          `json:"type"`
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Value    string            `json:"value,omitempty"`
	Style    *wireStyle        `json:"style,omitempty"`
	Ref      string            `json:"ref,omitempty"`
	Children []wireNode        `json:"children,omitempty"`
	Shadow   []wireNode        `json:"shadow,omitempty"`
}

type wireStyle struct {
	Display    string   `json:"display"`
	Visibility string   `json:"visibility"`
	Opacity    *float64 `json:"opacity"`
	Width      *float64 `json:"width"`
	Height     *float64 `json:"height"`
}

// Decode builds a snapshot from the collector's JSON document.
func Decode(data []byte) (*Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("dom: decode snapshot: %w", err)
	}
	if w.Type == 0 {
		w.Type = DocumentNode
	}
	return fromWire(&w, nil), nil
}

func fromWire(w *wireNode, parent *Node) *Node {
	n := &Node{
		Type:   w.Type,
		Tag:    strings.ToLower(w.Tag),
		Attrs:  w.Attrs,
		Text:   w.Text,
		Value:  w.Value,
		Ref:    w.Ref,
		Parent: parent,
	}
	if w.Style != nil {
		st := &Style{Display: w.Style.Display, Visibility: w.Style.Visibility, Opacity: 1}
		if w.Style.Opacity != nil {
			st.Opacity = *w.Style.Opacity
		}
		if w.Style.Width != nil && w.Style.Height != nil {
			st.HasBox = true
			st.Width, st.Height = *w.Style.Width, *w.Style.Height
		}
		n.Style = st
	}
	for i := range w.Children {
		n.Children = append(n.Children, fromWire(&w.Children[i], n))
	}
	if len(w.Shadow) > 0 {
		sr := &Node{Type: ShadowRootNode, Host: n}
		for i := range w.Shadow {
			sr.Children = append(sr.Children, fromWire(&w.Shadow[i], sr))
		}
		n.Shadow = sr
	}
	return n
}
