package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/tree"
)

// Node is a message with its replies nested below it.
type Node struct {
	ID        tree.MessageID `json:"id" yaml:"id"`
	Prompt    string         `json:"prompt" yaml:"prompt"`
	Response  string         `json:"response" yaml:"response"`
	IsBranch  bool           `json:"is_branch" yaml:"is_branch"`
	Position  *tree.Position `json:"position,omitempty" yaml:"position,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	Children  []*Node        `json:"children,omitempty" yaml:"children,omitempty"`
}

type Document struct {
	SessionID tree.SessionID `json:"session_id" yaml:"session_id"`
	Title     string         `json:"title,omitempty" yaml:"title,omitempty"`
	Count     int            `json:"count" yaml:"count"`
	Roots     []*Node        `json:"roots" yaml:"roots"`
}

// NewDocument nests the messages of ix under their parents. Messages whose
// parent is missing become roots. Nodes only reachable through a cycle are
// left out.
func NewDocument(sessionID tree.SessionID, title string, ix *tree.Index) *Document {
	doc := &Document{
		SessionID: sessionID,
		Title:     title,
		Roots:     []*Node{},
	}

	seen := map[tree.MessageID]bool{}
	type item struct {
		id  tree.MessageID
		out *[]*Node
	}
	var stack []item
	roots := ix.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, item{id: roots[i], out: &doc.Roots})
	}
	// Roots are pushed in reverse and popped in order; children likewise, so
	// the output follows ascending IDs at every level.
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[it.id] {
			continue
		}
		seen[it.id] = true
		msg, ok := ix.Get(it.id)
		if !ok {
			continue
		}
		n := &Node{
			ID:        msg.ID,
			Prompt:    msg.Prompt,
			Response:  msg.Response,
			IsBranch:  msg.IsBranch,
			Position:  msg.Position,
			CreatedAt: msg.CreatedAt,
		}
		*it.out = append(*it.out, n)
		doc.Count++

		children := ix.Children(it.id)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{id: children[i], out: &n.Children})
		}
	}
	return doc
}

func (d *Document) title() string {
	if d.Title != "" {
		return d.Title
	}
	return fmt.Sprintf("Session %d", d.SessionID)
}

// Markdown renders the tree as an outline: every node becomes a heading whose
// level follows its depth, numbered like 1.2.1.
func Markdown(d *Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", d.title())
	if len(d.Roots) == 0 {
		sb.WriteString("_No messages._\n")
		return sb.String()
	}

	type item struct {
		node   *Node
		number string
		depth  int
	}
	var stack []item
	for i := len(d.Roots) - 1; i >= 0; i-- {
		stack = append(stack, item{node: d.Roots[i], number: fmt.Sprint(i + 1), depth: 1})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		writeNode(&sb, it.node, it.number, it.depth)
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{
				node:   it.node.Children[i],
				number: fmt.Sprintf("%s.%d", it.number, i+1),
				depth:  it.depth + 1,
			})
		}
	}
	return sb.String()
}

func writeNode(sb *strings.Builder, n *Node, number string, depth int) {
	level := depth + 1
	if level > 6 {
		level = 6
	}
	fmt.Fprintf(sb, "%s %s %s", strings.Repeat("#", level), number, summarize(n.Prompt))
	if n.IsBranch {
		sb.WriteString(" (branch)")
	}
	sb.WriteString("\n\n")

	sb.WriteString("**Prompt**\n\n")
	for _, line := range strings.Split(strings.TrimRight(n.Prompt, "\n"), "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n**Response**\n\n")
	sb.WriteString(strings.TrimRight(n.Response, "\n"))
	sb.WriteString("\n\n")
}

// summarize returns the first line of s, cut to 60 runes.
func summarize(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	if len(r) == 0 {
		return "(empty prompt)"
	}
	return s
}
