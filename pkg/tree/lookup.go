package tree

import "context"

// NodeLookup fetches a single node. A missing node is (nil, false, nil).
type NodeLookup interface {
	LookupNode(ctx context.Context, id MessageID) (*Message, bool, error)
}

// ChildrenLookup lists the direct children of a node.
type ChildrenLookup interface {
	LookupChildren(ctx context.Context, id MessageID) ([]MessageID, error)
}

// DefaultMaxPathDepth bounds ancestor walks when the caller does not set a limit.
const DefaultMaxPathDepth = 10000
