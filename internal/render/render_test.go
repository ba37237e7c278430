package render

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processmap/internal/attr"
)

func TestRenderScalars(t *testing.T) {
	assert.Equal(t, "True", Text(Render(attr.Bool(true), 0)))
	assert.Equal(t, "False", Text(Render(attr.Bool(false), 0)))
	assert.Equal(t, "3", Text(Render(attr.Number(3), 0)))
	assert.Equal(t, "2.5", Text(Render(attr.Number(2.5), 0)))
	assert.Equal(t, "RO, Nurse", Text(Render(attr.Strings("RO", "Nurse"), 0)))
}

func TestRenderObjectIndentsByDepth(t *testing.T) {
	v := attr.Object(
		attr.Field{Key: "priority", Value: attr.Number(3)},
		attr.Field{Key: "owner", Value: attr.Object(attr.Field{Key: "team", Value: attr.String("CT")})},
	)
	want := "- priority: 3\n- owner:\n  - team: CT"
	assert.Equal(t, want, Text(Render(v, 0)))
}

func TestRenderArrayOfObjects(t *testing.T) {
	v := attr.Array(
		attr.Object(attr.Field{Key: "a", Value: attr.Number(1)}),
		attr.Object(attr.Field{Key: "b", Value: attr.Bool(true)}),
	)
	n := Render(v, 0)
	assert.Equal(t, ListNode, n.Type)
	assert.Len(t, n.Children, 2)
	assert.Equal(t, "b", n.Children[1].Children[0].Key)
	assert.Equal(t, "True", n.Children[1].Children[0].Children[0].Text)
}

func TestRenderIsDeterministic(t *testing.T) {
	v := attr.Object(
		attr.Field{Key: "notes", Value: attr.RichText("# Head\n\n1. one\n2. two")},
		attr.Field{Key: "tags", Value: attr.Strings("x", "y")},
	)
	first := Render(v, 0)
	second := Render(v, 0)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("render not deterministic:\n%s", diff)
	}
	assert.Equal(t, HTML(first), HTML(second))
}

func TestRichTextSubset(t *testing.T) {
	n := Render(attr.RichText("**Important**\n- item1"), 0)
	want := []*Node{
		{Type: ParagraphNode, Children: []*Node{{Type: StrongNode, Children: []*Node{{Type: TextNode, Text: "Important"}}}}},
		{Type: BulletNode, Children: []*Node{{Type: ListItemNode, Children: []*Node{{Type: TextNode, Text: "item1"}}}}},
	}
	if diff := cmp.Diff(want, n.Children); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}
	out := HTML(n)
	assert.Contains(t, out, "<strong>Important</strong>")
	assert.Contains(t, out, "<ul><li>item1</li></ul>")
}

func TestOrderedListKeepsStartNumber(t *testing.T) {
	n := Render(attr.RichText("3. triage\n4. consult"), 0)
	require.Len(t, n.Children, 1)
	assert.Equal(t, OrderedNode, n.Children[0].Type)
	assert.Equal(t, 3, n.Children[0].Start)
	assert.Equal(t, "3. triage\n4. consult", Text(n))
	assert.Equal(t, `<ol start="3"><li>triage</li><li>consult</li></ol>`, HTML(n))

	n = Render(attr.RichText("1. one\n2. two"), 0)
	assert.Equal(t, "1. one\n2. two", Text(n))
	assert.Equal(t, "<ol><li>one</li><li>two</li></ol>", HTML(n))
}

func TestRichTextHeadingLevels(t *testing.T) {
	n := Render(attr.RichText("# one\n\n#### four"), 0)
	assert.Equal(t, HeadingNode, n.Children[0].Type)
	assert.Equal(t, 1, n.Children[0].Level)
	assert.Equal(t, ParagraphNode, n.Children[1].Type)
	assert.Equal(t, "<h1>one</h1><p>four</p>", HTML(n))
}

func TestRichTextNeverEmitsRawMarkup(t *testing.T) {
	for _, src := range []string{
		"<script>alert(1)</script>",
		"hello <script>alert(1)</script> there",
		"[click](javascript:alert(1)) <img src=x onerror=alert(1)>",
	} {
		out := HTML(Render(attr.RichText(src), 0))
		assert.NotContains(t, out, "<script", src)
		assert.NotContains(t, out, "<img", src)
		assert.NotContains(t, out, "<a ", src)
	}
	out := HTML(Render(attr.RichText("<script>alert(1)</script>"), 0))
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestAttributesMap(t *testing.T) {
	m := attr.NewMap(
		attr.Entry{Name: "role", Value: attr.Strings("RO", "Nurse")},
		attr.Entry{Name: "active", Value: attr.Bool(true)},
	)
	assert.Equal(t, "- role: RO, Nurse\n- active: True", Text(Attributes(m)))
	assert.Equal(t, "<ul><li><strong>role</strong>: RO, Nurse</li><li><strong>active</strong>: True</li></ul>", HTML(Attributes(m)))
}
