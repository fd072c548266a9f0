package storage

import (
	"context"
	"strings"

	"github.com/kebairia/sbackup/internal/logger"
)

// Walker enumerates every leaf object under a bucket prefix.
//
// Entries whose final segment has no "." are treated as folders: they are
// never returned, their full path becomes a new prefix to list. Pending
// prefixes are kept on an explicit stack so deep namespaces do not grow the
// call stack.
type Walker struct {
	lister Lister
	log    logger.Logger
	// MaxDepth caps how many folder levels are followed; 0 means no limit.
	MaxDepth int
}

// NewWalker returns a Walker listing through l.
func NewWalker(l Lister, log logger.Logger, maxDepth int) *Walker {
	return &Walker{lister: l, log: log, MaxDepth: maxDepth}
}

type pendingPrefix struct {
	prefix string
	depth  int
}

// Walk returns the leaf objects reachable under prefix ("" is the bucket
// root), in discovery order. A prefix that cannot be listed is logged and
// contributes nothing; the walk carries on with its siblings. The only error
// returned is the context's.
func (w *Walker) Walk(ctx context.Context, bucket, prefix string) ([]ObjectRecord, error) {
	var records []ObjectRecord
	stack := []pendingPrefix{{prefix: strings.Trim(prefix, "/")}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := w.lister.List(ctx, bucket, cur.prefix)
		if err != nil {
			w.log.Warn("list objects failed, skipping subtree",
				"bucket", bucket,
				"prefix", cur.prefix,
				"error", err.Error(),
			)
			continue
		}

		var folders []pendingPrefix
		for _, e := range entries {
			if e.Name == "" {
				continue
			}
			full := JoinPath(cur.prefix, e.Name)
			if !IsContainer(e.Name) {
				records = append(records, ObjectRecord{Path: full, Metadata: e.Metadata})
				continue
			}
			if w.MaxDepth > 0 && cur.depth >= w.MaxDepth {
				w.log.Warn("folder depth limit reached, skipping",
					"bucket", bucket,
					"prefix", full,
					"max_depth", w.MaxDepth,
				)
				continue
			}
			folders = append(folders, pendingPrefix{prefix: full, depth: cur.depth + 1})
		}
		// Push in reverse so folders are visited in listing order.
		for i := len(folders) - 1; i >= 0; i-- {
			stack = append(stack, folders[i])
		}
	}
	return records, nil
}
