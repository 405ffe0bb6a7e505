package bluesky

import (
	"encoding/json"
	"time"
)

// Wire types for the XRPC endpoints the pipeline touches. Embeds and repost
// reasons are unions discriminated by $type, so they stay as raw JSON here
// and are navigated during extraction.

type Session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

// PostView is app.bsky.feed.defs#postView.
type PostView struct {
	URI         string          `json:"uri"`
	CID         string          `json:"cid"`
	Author      Author          `json:"author"`
	Record      json.RawMessage `json:"record"`
	Embed       json.RawMessage `json:"embed,omitempty"`
	ReplyCount  int             `json:"replyCount"`
	RepostCount int             `json:"repostCount"`
	LikeCount   int             `json:"likeCount"`
	IndexedAt   string          `json:"indexedAt"`
}

// ReplyRef carries the hydrated parent and root views a timeline item
// includes when the post is a reply. Either may be a notFound/blocked
// placeholder, in which case only the URI survives decoding.
type ReplyRef struct {
	Root   PostView `json:"root"`
	Parent PostView `json:"parent"`
}

// FeedItem is app.bsky.feed.defs#feedViewPost.
type FeedItem struct {
	Post   PostView        `json:"post"`
	Reply  *ReplyRef       `json:"reply,omitempty"`
	Reason json.RawMessage `json:"reason,omitempty"`
}

type timelineResponse struct {
	Cursor string     `json:"cursor"`
	Feed   []FeedItem `json:"feed"`
}

type postsResponse struct {
	Posts []PostView `json:"posts"`
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Batch is the raw result of one timeline fetch and is exactly what a cache
// snapshot persists: the deduplicated feed plus any supplemental parent
// records fetched to reconstruct reply chains.
type Batch struct {
	Handle    string     `json:"handle"`
	FetchedAt time.Time  `json:"fetched_at"`
	Feed      []FeedItem `json:"feed"`
	Parents   []PostView `json:"parents,omitempty"`
}

// EncodeBatch and DecodeBatch translate between a Batch and the snapshot
// payload stored in the database.
func EncodeBatch(b *Batch) ([]byte, error) {
	return json.Marshal(b)
}

func DecodeBatch(payload []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
