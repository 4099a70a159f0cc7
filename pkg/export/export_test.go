package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func msg(id int64, parent int64, prompt string, branch bool) *tree.Message {
	m := &tree.Message{
		ID:        tree.MessageID(id),
		SessionID: 1,
		Prompt:    prompt,
		Response:  "re: " + prompt,
		IsBranch:  branch,
	}
	if parent != 0 {
		p := tree.MessageID(parent)
		m.ParentID = &p
	}
	return m
}

// 1 -> 2 -> 3, 1 -> 4 (branch), 5 root
func scenario() *Document {
	ix := tree.NewIndex(
		msg(4, 1, "other way", true),
		msg(1, 0, "hello", false),
		msg(2, 1, "tell me more", false),
		msg(3, 2, "and then?", false),
		msg(5, 0, "second root", false),
	)
	return NewDocument(1, "Demo", ix)
}

func TestNewDocumentNesting(t *testing.T) {
	doc := scenario()
	assert.Equal(t, 5, doc.Count)
	require.Len(t, doc.Roots, 2)
	assert.Equal(t, tree.MessageID(1), doc.Roots[0].ID)
	assert.Equal(t, tree.MessageID(5), doc.Roots[1].ID)

	kids := doc.Roots[0].Children
	require.Len(t, kids, 2)
	assert.Equal(t, tree.MessageID(2), kids[0].ID)
	assert.Equal(t, tree.MessageID(4), kids[1].ID)
	assert.True(t, kids[1].IsBranch)
	require.Len(t, kids[0].Children, 1)
	assert.Equal(t, tree.MessageID(3), kids[0].Children[0].ID)
}

func TestNewDocumentEmpty(t *testing.T) {
	doc := NewDocument(7, "", tree.NewIndex())
	assert.Equal(t, 0, doc.Count)
	assert.Equal(t, "# Session 7\n\n_No messages._\n", Markdown(doc))
}

func TestNewDocumentSkipsCycle(t *testing.T) {
	ix := tree.NewIndex(msg(1, 0, "root", false), msg(2, 3, "a", false), msg(3, 2, "b", false))
	doc := NewDocument(1, "", ix)
	assert.Equal(t, 1, doc.Count)
}

func TestMarkdownOutline(t *testing.T) {
	md := Markdown(scenario())
	assert.True(t, strings.HasPrefix(md, "# Demo\n"))

	expected := []string{
		"## 1 hello",
		"### 1.1 tell me more",
		"#### 1.1.1 and then?",
		"### 1.2 other way (branch)",
		"## 2 second root",
	}
	last := -1
	for _, h := range expected {
		i := strings.Index(md, h+"\n")
		require.GreaterOrEqual(t, i, 0, h)
		assert.Greater(t, i, last, h)
		last = i
	}
	assert.Contains(t, md, "> hello\n")
	assert.Contains(t, md, "re: hello\n")
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "first", summarize("first\nsecond"))
	assert.Equal(t, "(empty prompt)", summarize("  "))
	long := strings.Repeat("a", 80)
	assert.Equal(t, strings.Repeat("a", 57)+"...", summarize(long))
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatHTML, scenario(), DefaultOptions()))

	dom, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Demo", dom.Find("title").Text())
	assert.Equal(t, "Demo", dom.Find("h1").Text())
	assert.Equal(t, 2, dom.Find("h2").Length())
	assert.Equal(t, "1.2 other way (branch)", dom.Find("h3").Eq(1).Text())
	assert.Equal(t, 5, dom.Find("blockquote").Length())
}

func TestJSONAndYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, scenario(), DefaultOptions()))
	var fromJSON Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, 5, fromJSON.Count)
	assert.Equal(t, "and then?", fromJSON.Roots[0].Children[0].Children[0].Prompt)

	buf.Reset()
	require.NoError(t, Write(&buf, FormatYAML, scenario(), DefaultOptions()))
	var fromYAML Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, "Demo", fromYAML.Title)
	assert.True(t, fromYAML.Roots[0].Children[1].IsBranch)
}

func TestTerm(t *testing.T) {
	out, err := RenderTerm(scenario(), Options{TermStyle: "notty", WordWrap: 80})
	require.NoError(t, err)
	assert.Contains(t, out, "tell me more")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)
	f, err = ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, tree.ErrValidation)
}
