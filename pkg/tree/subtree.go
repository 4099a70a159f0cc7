package tree

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CollectSubtree returns root followed by all of its transitive descendants in
// breadth-first order. It uses an explicit queue, so deep trees do not grow the
// call stack. A node reached twice only happens with a cycle in corrupt data; it
// is logged and skipped so the subtree can still be erased.
func CollectSubtree(ctx context.Context, lookup ChildrenLookup, root MessageID) ([]MessageID, error) {
	seen := map[MessageID]struct{}{root: {}}
	ret := []MessageID{root}
	queue := []MessageID{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		children, err := lookup.LookupChildren(ctx, current)
		if err != nil {
			return nil, errors.Wrapf(err, "listing children of message %d", current)
		}
		for _, child := range children {
			if _, ok := seen[child]; ok {
				log.Warn().
					Int64("message_id", int64(child)).
					Int64("parent_id", int64(current)).
					Msg("message reached twice while collecting subtree, skipping")
				continue
			}
			seen[child] = struct{}{}
			ret = append(ret, child)
			queue = append(queue, child)
		}
	}

	return ret, nil
}
