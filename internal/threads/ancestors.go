package threads

import "context"

// loadAncestors walks parentHash pointers upward from the page's
// visible replies to collect quoted-parent context, batching one store
// fetch per hop. Traversal is bounded by the configured depth cap and
// a visited set, so malformed parent cycles terminate instead of
// recursing; a hop whose parent is absent from the store simply ends
// that chain. Fetched rows are added to lookup in place.
func (s *Service) loadAncestors(ctx context.Context, root Hash, replies []AssembledPost, lookup map[Hash]Post) error {
	visited := make(map[Hash]struct{}, len(lookup))
	for hash := range lookup {
		visited[hash] = struct{}{}
	}

	frontier := make([]Hash, 0, len(replies))
	for _, reply := range replies {
		if reply.Post.ParentHash == nil {
			continue
		}
		parent := Hash(*reply.Post.ParentHash)
		if _, ok := visited[parent]; ok {
			continue
		}
		visited[parent] = struct{}{}
		frontier = append(frontier, parent)
	}

	for hop := 0; hop < s.opts.AncestorDepth && len(frontier) > 0; hop++ {
		fetched, err := s.store.FindByHashes(ctx, frontier)
		if err != nil {
			return err
		}
		next := make([]Hash, 0, len(fetched))
		for _, post := range fetched {
			lookup[Hash(post.Hash)] = post
			if post.ParentHash == nil || Hash(post.Hash) == root {
				continue
			}
			parent := Hash(*post.ParentHash)
			if _, ok := visited[parent]; ok {
				continue
			}
			visited[parent] = struct{}{}
			next = append(next, parent)
		}
		frontier = next
	}
	return nil
}
