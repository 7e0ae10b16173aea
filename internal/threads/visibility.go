package threads

import "strings"

// IsEligibleReply reports whether a reply row participates in thread
// views at all: not soft-deleted, not hidden, author not hidden, author
// trust at or above the threshold, and a non-empty body after trimming.
// A missing trust score counts as zero. Pure predicate, no side effects.
func IsEligibleReply(post Post, author AuthorState, trustThreshold float64) bool {
	if post.DeletedAtMS != nil || post.HiddenAtMS != nil {
		return false
	}
	if author.HiddenAtMS != nil {
		return false
	}
	score := 0.0
	if author.TrustScore != nil {
		score = *author.TrustScore
	}
	if score < trustThreshold {
		return false
	}
	return strings.TrimSpace(post.BodyText) != ""
}

// rootIsRenderable reports whether a root can anchor a thread view.
// Hides on roots are display-only banners, so a hidden root stays
// renderable; a deleted root or a bodyless root with no eligible
// replies does not.
func rootIsRenderable(root Post, eligibleReplyCount int) bool {
	if root.DeletedAtMS != nil {
		return false
	}
	if strings.TrimSpace(root.BodyText) == "" && eligibleReplyCount == 0 {
		return false
	}
	return true
}
