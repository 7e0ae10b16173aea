package server

import "github.com/skeinsocial/skein/backend/internal/threads"

type castPayload struct {
	Hash          string   `json:"hash"`
	AuthorFID     int64    `json:"author_fid"`
	ParentHash    *string  `json:"parent_hash,omitempty"`
	RootHash      string   `json:"root_hash"`
	TimestampMS   *int64   `json:"timestamp_ms,omitempty"`
	HasAttachment bool     `json:"has_attachment"`
	BodyText      string   `json:"body_text"`
	Hidden        bool     `json:"hidden,omitempty"`
	HiddenReason  string   `json:"hidden_reason,omitempty"`
	Number        int      `json:"number,omitempty"`
	Members       []string `json:"members,omitempty"`
}

type pagePayload struct {
	Root         castPayload            `json:"root"`
	Replies      []castPayload          `json:"replies"`
	ReplyCount   int64                  `json:"reply_count"`
	PageSize     int                    `json:"page_size"`
	Page         int                    `json:"page"`
	TotalPages   int                    `json:"total_pages"`
	HasNextPage  bool                   `json:"has_next_page"`
	HasPrevPage  bool                   `json:"has_prev_page"`
	LookupByHash map[string]castPayload `json:"lookup_by_hash"`
}

func pagePayloadFrom(page threads.Page) pagePayload {
	replies := make([]castPayload, 0, len(page.Replies))
	for _, reply := range page.Replies {
		replies = append(replies, assembledPayloadFrom(reply))
	}
	lookup := make(map[string]castPayload, len(page.LookupByHash))
	for hash, post := range page.LookupByHash {
		lookup[hash.String()] = rawPayloadFrom(post)
	}
	return pagePayload{
		Root:         assembledPayloadFrom(page.Root),
		Replies:      replies,
		ReplyCount:   page.ReplyCount,
		PageSize:     page.PageSize,
		Page:         page.PageNumber,
		TotalPages:   page.TotalPages,
		HasNextPage:  page.HasNextPage,
		HasPrevPage:  page.HasPrevPage,
		LookupByHash: lookup,
	}
}

func assembledPayloadFrom(post threads.AssembledPost) castPayload {
	payload := rawPayloadFrom(post.Post)
	payload.Number = post.Number
	members := make([]string, 0, len(post.Members))
	for _, member := range post.Members {
		members = append(members, member.String())
	}
	payload.Members = members
	return payload
}

func rawPayloadFrom(post threads.Post) castPayload {
	return castPayload{
		Hash:          post.Hash,
		AuthorFID:     post.AuthorFID,
		ParentHash:    post.ParentHash,
		RootHash:      post.RootHash,
		TimestampMS:   post.TimestampMS,
		HasAttachment: post.HasAttachment,
		BodyText:      post.BodyText,
		Hidden:        post.HiddenAtMS != nil,
		HiddenReason:  post.HiddenReason,
	}
}
