package tree

import (
	"context"
	"sort"
)

// Index is an in-memory view of one session's message tree.
//
// Nodes are kept in an ID-keyed arena; parent links are plain IDs. The children
// index is derived on demand and dropped whenever the node set changes, so
// traversal always agrees with the arena. Messages are returned in insertion
// order.
type Index struct {
	nodes    map[MessageID]*Message
	order    []MessageID
	children map[MessageID][]MessageID
}

var _ NodeLookup = (*Index)(nil)
var _ ChildrenLookup = (*Index)(nil)

func NewIndex(msgs ...*Message) *Index {
	ret := &Index{
		nodes: make(map[MessageID]*Message),
	}
	ret.Insert(msgs...)
	return ret
}

// Insert adds messages, replacing any node with the same ID in place.
func (ix *Index) Insert(msgs ...*Message) {
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if _, exists := ix.nodes[msg.ID]; !exists {
			ix.order = append(ix.order, msg.ID)
		}
		ix.nodes[msg.ID] = msg
	}
	ix.children = nil
}

// Remove drops the given IDs and returns how many were present.
func (ix *Index) Remove(ids ...MessageID) int {
	removed := 0
	drop := make(map[MessageID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := ix.nodes[id]; ok {
			delete(ix.nodes, id)
			drop[id] = struct{}{}
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	order := ix.order[:0]
	for _, id := range ix.order {
		if _, ok := drop[id]; !ok {
			order = append(order, id)
		}
	}
	ix.order = order
	ix.children = nil
	return removed
}

func (ix *Index) Len() int {
	return len(ix.nodes)
}

func (ix *Index) Get(id MessageID) (*Message, bool) {
	ret, ok := ix.nodes[id]
	return ret, ok
}

// Messages returns the nodes in insertion order.
func (ix *Index) Messages() []*Message {
	ret := make([]*Message, 0, len(ix.order))
	for _, id := range ix.order {
		ret = append(ret, ix.nodes[id])
	}
	return ret
}

// Children returns the IDs of the direct children of id, ascending.
func (ix *Index) Children(id MessageID) []MessageID {
	ix.buildChildren()
	return ix.children[id]
}

// Roots returns nodes without a parent, plus nodes whose parent is not in the
// index, ascending.
func (ix *Index) Roots() []MessageID {
	var ret []MessageID
	for _, id := range ix.order {
		node := ix.nodes[id]
		if node.ParentID == nil {
			ret = append(ret, id)
			continue
		}
		if _, ok := ix.nodes[*node.ParentID]; !ok {
			ret = append(ret, id)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Siblings returns the other children of id's parent.
func (ix *Index) Siblings(id MessageID) []MessageID {
	node, ok := ix.nodes[id]
	if !ok || node.ParentID == nil {
		return nil
	}
	var ret []MessageID
	for _, child := range ix.Children(*node.ParentID) {
		if child != id {
			ret = append(ret, child)
		}
	}
	return ret
}

func (ix *Index) LookupNode(_ context.Context, id MessageID) (*Message, bool, error) {
	ret, ok := ix.nodes[id]
	return ret, ok, nil
}

func (ix *Index) LookupChildren(_ context.Context, id MessageID) ([]MessageID, error) {
	return ix.Children(id), nil
}

func (ix *Index) buildChildren() {
	if ix.children != nil {
		return
	}
	ix.children = make(map[MessageID][]MessageID)
	for _, id := range ix.order {
		node := ix.nodes[id]
		if node.ParentID == nil {
			continue
		}
		ix.children[*node.ParentID] = append(ix.children[*node.ParentID], id)
	}
	for parent := range ix.children {
		kids := ix.children[parent]
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
	}
}
