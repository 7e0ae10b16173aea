package threads

import (
	"sort"
	"strings"
)

// SortReplies orders rows ascending by (timestamp, hash), with rows
// missing a timestamp sorted last. Every path that runs the clustering
// engine must use this exact order; it is the only way the persisted
// stats path and the page-build path agree on merge decisions.
func SortReplies(rows []Post) {
	sort.SliceStable(rows, func(i, j int) bool {
		left, right := rows[i].TimestampMS, rows[j].TimestampMS
		switch {
		case left == nil && right == nil:
			return rows[i].Hash < rows[j].Hash
		case left == nil:
			return false
		case right == nil:
			return true
		case *left != *right:
			return *left < *right
		default:
			return rows[i].Hash < rows[j].Hash
		}
	})
}

// ClusterReplies is the reference clustering implementation: a single
// left-to-right pass over the sorted eligible replies of one root,
// deciding per row which visible post it collapses into.
//
// The pass carries an anchor (the current merge target, initially the
// root) and a chain tail (the previously processed row). A reply merges
// into the anchor iff the root's author is known, the reply and the
// chain tail are both by the root's author, the reply directly answers
// the chain tail, it carries no attachment, and its timestamp is
// present, not earlier than the tail's, and within windowMS of it.
// A merging reply advances the tail without changing the anchor; any
// other reply becomes the new anchor and resets the chain. A row
// missing a timestamp can become an anchor but never accepts merges
// from later rows.
func ClusterReplies(root Post, sortedReplies []Post, windowMS int64) []ClusterRow {
	rows := make([]ClusterRow, 0, len(sortedReplies))
	rootAuthorKnown := root.AuthorFID > 0
	anchor := Hash(root.Hash)
	tail := root
	for _, reply := range sortedReplies {
		if rootAuthorKnown && mergesIntoChain(tail, reply, root.AuthorFID, windowMS) {
			rows = append(rows, ClusterRow{Post: reply, MergeTarget: anchor, IsMerged: true})
		} else {
			anchor = Hash(reply.Hash)
			rows = append(rows, ClusterRow{Post: reply, MergeTarget: anchor, IsMerged: false})
		}
		tail = reply
	}
	return rows
}

func mergesIntoChain(tail, reply Post, rootAuthorFID, windowMS int64) bool {
	if reply.AuthorFID != rootAuthorFID {
		return false
	}
	if tail.AuthorFID != reply.AuthorFID {
		return false
	}
	if reply.ParentHash == nil || *reply.ParentHash != tail.Hash {
		return false
	}
	if reply.HasAttachment {
		return false
	}
	if reply.TimestampMS == nil || tail.TimestampMS == nil {
		return false
	}
	delta := *reply.TimestampMS - *tail.TimestampMS
	return delta >= 0 && delta <= windowMS
}

// AssembleThread folds clustering output into the rendered view: the
// assembled root plus the ordered visible replies, with absorbed body
// text concatenated onto each anchor in input order. It builds fresh
// values and never mutates the rows it is given, so concurrent page
// builds over the same snapshot cannot alias each other's text.
func AssembleThread(root Post, rows []ClusterRow) (AssembledPost, []AssembledPost) {
	assembledRoot := AssembledPost{Post: root, Members: []Hash{Hash(root.Hash)}, Number: 1}
	visible := make([]AssembledPost, 0, len(rows))
	indexByTarget := make(map[Hash]int, len(rows))

	for _, row := range rows {
		if !row.IsMerged {
			indexByTarget[row.MergeTarget] = len(visible)
			visible = append(visible, AssembledPost{
				Post:    row.Post,
				Members: []Hash{Hash(row.Post.Hash)},
			})
			continue
		}
		if row.MergeTarget == Hash(root.Hash) {
			assembledRoot.Post.BodyText = appendBody(assembledRoot.Post.BodyText, row.Post.BodyText)
			assembledRoot.Members = append(assembledRoot.Members, Hash(row.Post.Hash))
			continue
		}
		idx, ok := indexByTarget[row.MergeTarget]
		if !ok {
			// Cannot happen for conforming cluster output; keep the row
			// visible rather than dropping user content.
			indexByTarget[Hash(row.Post.Hash)] = len(visible)
			visible = append(visible, AssembledPost{
				Post:    row.Post,
				Members: []Hash{Hash(row.Post.Hash)},
			})
			continue
		}
		visible[idx].Post.BodyText = appendBody(visible[idx].Post.BodyText, row.Post.BodyText)
		visible[idx].Members = append(visible[idx].Members, Hash(row.Post.Hash))
	}
	return assembledRoot, visible
}

func appendBody(current, addition string) string {
	if strings.TrimSpace(current) == "" {
		return addition
	}
	if strings.TrimSpace(addition) == "" {
		return current
	}
	return current + "\n\n" + addition
}
