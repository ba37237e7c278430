package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the final gate on generated HTML; only the supported subset
// survives it.
var policy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "h3", "p", "ul", "ol", "li", "strong")
	p.AllowAttrs("start").Matching(bluemonday.Integer).OnElements("ol")
	return p
}()

// Text formats a tree as indented plain text.
func Text(n *Node) string {
	var b strings.Builder
	writeText(&b, n)
	return strings.TrimRight(b.String(), "\n")
}

func writeText(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case TextNode:
		b.WriteString(n.Text)
	case StrongNode:
		for _, c := range n.Children {
			writeText(b, c)
		}
	case ListNode:
		indent := strings.Repeat("  ", n.Depth)
		for _, c := range n.Children {
			b.WriteString(indent)
			b.WriteString("- ")
			if c.Type == ItemNode {
				b.WriteString(c.Key)
				b.WriteString(":")
				if child := only(c); child != nil && inlineNode(child) {
					b.WriteString(" ")
					writeText(b, child)
					b.WriteString("\n")
					continue
				}
				b.WriteString("\n")
				for _, cc := range c.Children {
					writeText(b, cc)
				}
				continue
			}
			if inlineNode(c) {
				writeText(b, c)
				b.WriteString("\n")
				continue
			}
			b.WriteString("\n")
			writeText(b, c)
		}
	case RichTextNode:
		indent := strings.Repeat("  ", n.Depth)
		for _, c := range n.Children {
			writeBlockText(b, c, indent)
		}
	default:
		writeBlockText(b, n, "")
	}
}

func writeBlockText(b *strings.Builder, n *Node, indent string) {
	switch n.Type {
	case HeadingNode:
		b.WriteString(indent)
		b.WriteString(strings.Repeat("#", n.Level))
		b.WriteString(" ")
		writeInline(b, n.Children)
		b.WriteString("\n")
	case ParagraphNode:
		b.WriteString(indent)
		writeInline(b, n.Children)
		b.WriteString("\n")
	case BulletNode, OrderedNode:
		for i, item := range n.Children {
			b.WriteString(indent)
			if n.Type == OrderedNode {
				fmt.Fprintf(b, "%d. ", n.Start+i)
			} else {
				b.WriteString("- ")
			}
			var nested []*Node
			var spans []*Node
			for _, c := range item.Children {
				if c.Type == BulletNode || c.Type == OrderedNode {
					nested = append(nested, c)
					continue
				}
				if c.Type == ParagraphNode {
					spans = append(spans, c.Children...)
					continue
				}
				spans = append(spans, c)
			}
			writeInline(b, spans)
			b.WriteString("\n")
			for _, l := range nested {
				writeBlockText(b, l, indent+"  ")
			}
		}
	default:
		writeText(b, n)
	}
}

func writeInline(b *strings.Builder, nodes []*Node) {
	for _, n := range nodes {
		writeText(b, n)
	}
}

// HTML formats a tree as sanitized HTML.
func HTML(n *Node) string {
	var b strings.Builder
	writeHTML(&b, n)
	return policy.Sanitize(b.String())
}

func writeHTML(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case TextNode:
		b.WriteString(html.EscapeString(n.Text))
	case StrongNode:
		b.WriteString("<strong>")
		writeChildrenHTML(b, n)
		b.WriteString("</strong>")
	case ListNode:
		b.WriteString("<ul>")
		for _, c := range n.Children {
			b.WriteString("<li>")
			if c.Type == ItemNode {
				b.WriteString("<strong>")
				b.WriteString(html.EscapeString(c.Key))
				b.WriteString("</strong>: ")
				writeChildrenHTML(b, c)
			} else {
				writeHTML(b, c)
			}
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	case ListItemNode:
		b.WriteString("<li>")
		writeChildrenHTML(b, n)
		b.WriteString("</li>")
	case RichTextNode, ItemNode:
		writeChildrenHTML(b, n)
	case HeadingNode:
		tag := fmt.Sprintf("h%d", n.Level)
		b.WriteString("<" + tag + ">")
		writeChildrenHTML(b, n)
		b.WriteString("</" + tag + ">")
	case ParagraphNode:
		b.WriteString("<p>")
		writeChildrenHTML(b, n)
		b.WriteString("</p>")
	case BulletNode:
		b.WriteString("<ul>")
		writeChildrenHTML(b, n)
		b.WriteString("</ul>")
	case OrderedNode:
		if n.Start != 1 {
			fmt.Fprintf(b, `<ol start="%d">`, n.Start)
		} else {
			b.WriteString("<ol>")
		}
		writeChildrenHTML(b, n)
		b.WriteString("</ol>")
	}
}

func writeChildrenHTML(b *strings.Builder, n *Node) {
	for _, c := range n.Children {
		writeHTML(b, c)
	}
}

func only(n *Node) *Node {
	if len(n.Children) != 1 {
		return nil
	}
	return n.Children[0]
}

func inlineNode(n *Node) bool {
	return n.Type == TextNode || n.Type == StrongNode
}
