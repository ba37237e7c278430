package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	textm "github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// Markdown parses richtext into the supported subset: headings 1 to 3,
// bullet and ordered lists, bold and paragraphs. Anything else is kept as
// plain text.
func Markdown(src string) []*Node {
	source := []byte(src)
	doc := markdown.Parser().Parse(textm.NewReader(source))
	return blocks(doc, source)
}

func blocks(parent ast.Node, src []byte) []*Node {
	var out []*Node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, block(c, src)...)
	}
	return out
}

func block(n ast.Node, src []byte) []*Node {
	switch b := n.(type) {
	case *ast.Heading:
		if b.Level <= 3 {
			return []*Node{{Type: HeadingNode, Level: b.Level, Children: inline(b, src)}}
		}
		return []*Node{{Type: ParagraphNode, Children: inline(b, src)}}
	case *ast.Paragraph, *ast.TextBlock:
		return []*Node{{Type: ParagraphNode, Children: inline(b, src)}}
	case *ast.List:
		list := &Node{Type: BulletNode}
		if b.IsOrdered() {
			list.Type = OrderedNode
			list.Start = b.Start
		}
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			li := &Node{Type: ListItemNode}
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if _, tight := c.(*ast.TextBlock); tight {
					li.Children = append(li.Children, inline(c, src)...)
					continue
				}
				li.Children = append(li.Children, block(c, src)...)
			}
			list.Children = append(list.Children, li)
		}
		return []*Node{list}
	case *ast.Blockquote:
		return blocks(b, src)
	default:
		raw := strings.TrimRight(rawLines(n, src), "\n")
		if raw == "" {
			return nil
		}
		return []*Node{{Type: ParagraphNode, Children: []*Node{text(raw)}}}
	}
}

func inline(n ast.Node, src []byte) []*Node {
	var out []*Node
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			s := string(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				s += "\n"
			}
			out = appendText(out, s)
		case *ast.String:
			out = appendText(out, string(t.Value))
		case *ast.Emphasis:
			if t.Level == 2 {
				out = append(out, &Node{Type: StrongNode, Children: inline(t, src)})
				continue
			}
			out = appendNodes(out, inline(t, src))
		case *ast.RawHTML:
			var buf bytes.Buffer
			for i := 0; i < t.Segments.Len(); i++ {
				seg := t.Segments.At(i)
				buf.Write(seg.Value(src))
			}
			out = appendText(out, buf.String())
		case *ast.AutoLink:
			out = appendText(out, string(t.Label(src)))
		default:
			out = appendNodes(out, inline(c, src))
		}
	}
	return out
}

// rawLines returns the source lines of a leaf block such as code or HTML.
func rawLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	if h, ok := n.(*ast.HTMLBlock); ok && h.HasClosure() {
		buf.Write(h.ClosureLine.Value(src))
	}
	return buf.String()
}

func appendText(out []*Node, s string) []*Node {
	if s == "" {
		return out
	}
	if len(out) > 0 && out[len(out)-1].Type == TextNode {
		out[len(out)-1].Text += s
		return out
	}
	return append(out, text(s))
}

func appendNodes(out []*Node, nodes []*Node) []*Node {
	for _, n := range nodes {
		if n.Type == TextNode {
			out = appendText(out, n.Text)
			continue
		}
		out = append(out, n)
	}
	return out
}
