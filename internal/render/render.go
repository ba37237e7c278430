// Package render turns attribute values into display trees.
//
// Rendering is pure: the same value always yields the same tree.
package render

import (
	"strings"

	"processmap/internal/attr"
)

type NodeType string

const (
	TextNode      NodeType = "text"
	ListNode      NodeType = "list"
	ItemNode      NodeType = "item"
	RichTextNode  NodeType = "richtext"
	HeadingNode   NodeType = "heading"
	ParagraphNode NodeType = "paragraph"
	BulletNode    NodeType = "bullet_list"
	OrderedNode   NodeType = "ordered_list"
	ListItemNode  NodeType = "list_item"
	StrongNode    NodeType = "strong"
)

// Node is one element of a display tree.
type Node struct {
	Type     NodeType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Key      string   `json:"key,omitempty"`
	Level    int      `json:"level,omitempty"`
	Depth    int      `json:"depth,omitempty"`
	Start    int      `json:"start,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

// Render builds the display tree for v. depth scales indentation of
// nested containers.
func Render(v attr.Value, depth int) *Node {
	switch v.Kind {
	case attr.KindBoolean:
		if v.Bool {
			return text("True")
		}
		return text("False")
	case attr.KindNumber:
		return text(attr.FormatNumber(v.Number))
	case attr.KindRichText:
		return &Node{Type: RichTextNode, Depth: depth, Children: Markdown(v.Text)}
	case attr.KindObject:
		list := &Node{Type: ListNode, Depth: depth}
		for _, f := range v.Fields {
			list.Children = append(list.Children, &Node{
				Type:     ItemNode,
				Key:      f.Key,
				Depth:    depth,
				Children: []*Node{Render(f.Value, depth+1)},
			})
		}
		return list
	case attr.KindArray:
		if v.HasObjects() {
			list := &Node{Type: ListNode, Depth: depth}
			for _, it := range v.Items {
				list.Children = append(list.Children, Render(it, depth+1))
			}
			return list
		}
		parts := make([]string, 0, len(v.Items))
		for _, it := range v.Items {
			parts = append(parts, Text(Render(it, depth+1)))
		}
		return text(strings.Join(parts, ", "))
	default:
		return text(v.Text)
	}
}

// Attributes renders a whole attribute map as a keyed list.
func Attributes(m attr.Map) *Node {
	return Render(attr.Object(fields(m)...), 0)
}

func fields(m attr.Map) []attr.Field {
	entries := m.Entries()
	out := make([]attr.Field, 0, len(entries))
	for _, e := range entries {
		out = append(out, attr.Field{Key: e.Name, Value: e.Value})
	}
	return out
}

func text(s string) *Node { return &Node{Type: TextNode, Text: s} }
