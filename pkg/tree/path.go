package tree

import (
	"context"

	"github.com/pkg/errors"
)

// ResolveThread walks the parent chain starting at id and returns the visited
// nodes root-first. A parent id that no longer resolves ends the walk, so a
// partially deleted chain yields the part that still exists. Revisiting a node
// or exceeding maxDepth is a CorruptTreeError.
func ResolveThread(ctx context.Context, lookup NodeLookup, id MessageID, maxDepth int) ([]*Message, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxPathDepth
	}

	var thread []*Message
	visited := map[MessageID]struct{}{}
	chain := []MessageID{}

	current := &id
	for current != nil {
		if _, seen := visited[*current]; seen {
			return nil, &CorruptTreeError{MessageID: *current, Chain: chain, Reason: "parent chain revisits a node"}
		}
		if len(chain) >= maxDepth {
			return nil, &CorruptTreeError{MessageID: *current, Chain: chain, Reason: "parent chain exceeds maximum depth"}
		}

		node, ok, err := lookup.LookupNode(ctx, *current)
		if err != nil {
			return nil, errors.Wrapf(err, "looking up message %d", *current)
		}
		if !ok {
			break
		}
		visited[*current] = struct{}{}
		chain = append(chain, *current)
		thread = append(thread, node)
		current = node.ParentID
	}

	for i, j := 0, len(thread)-1; i < j; i, j = i+1, j-1 {
		thread[i], thread[j] = thread[j], thread[i]
	}
	return thread, nil
}

// ResolvePath is ResolveThread reduced to the (prompt, response) pairs.
func ResolvePath(ctx context.Context, lookup NodeLookup, id MessageID, maxDepth int) ([]Exchange, error) {
	thread, err := ResolveThread(ctx, lookup, id, maxDepth)
	if err != nil {
		return nil, err
	}
	ret := make([]Exchange, 0, len(thread))
	for _, node := range thread {
		ret = append(ret, node.Exchange())
	}
	return ret, nil
}
