package model

import (
	"time"
)

// Image is a single picture attached to a post. Width and Height are the
// intrinsic pixel dimensions when known (from the record's aspect ratio or
// from decoding the downloaded bytes), zero otherwise. Data is nil until the
// image has been resolved; posts render without unresolved images.
type Image struct {
	FullsizeURL string
	ThumbURL    string
	Alt         string
	Width       int
	Height      int
	ContentType string
	Data        []byte
}

// QuotePost is the post embedded by a quote, rendered as an inset block.
type QuotePost struct {
	AuthorHandle string
	AuthorName   string
	Text         string
	Images       []Image
}

// ExternalLink is a link card attached to a post.
type ExternalLink struct {
	URI         string
	Title       string
	Description string
}

// Post is the uniform internal representation of one timeline entry.
type Post struct {
	URI          string
	CID          string
	AuthorHandle string
	AuthorName   string
	Text         string
	CreatedAt    time.Time
	Images       []Image
	Quote        *QuotePost
	Link         *ExternalLink

	// Reply references point at other posts by URI. A post whose parent is
	// not resolvable within the working set is treated as a root.
	ReplyParent string
	ReplyRoot   string
	// Context is a short synthesized line like
	//   replying to @alice.bsky.social: "the original point was..."
	// set only when the parent text is not itself part of the working set.
	Context string

	IsFavorite bool
	IsRepost   bool
	RepostedBy string

	Likes   int
	Reposts int
	Replies int

	// FetchOrder is the position in the original fetch batch, used as the
	// final tie-break so orderings stay deterministic.
	FetchOrder int
}

// Thread groups a root post with its in-batch replies, ordered
// chronologically. Threads are never rendered nested; they exist so that
// section ordering can keep conversation members adjacent.
type Thread struct {
	RootURI string
	Posts   []Post
}

// StartedAt is the timestamp of the earliest member.
func (t Thread) StartedAt() time.Time {
	if len(t.Posts) == 0 {
		return time.Time{}
	}
	earliest := t.Posts[0].CreatedAt
	for _, p := range t.Posts[1:] {
		if p.CreatedAt.Before(earliest) {
			earliest = p.CreatedAt
		}
	}
	return earliest
}

// Theme is one topical grouping produced by the classifier.
type Theme struct {
	ID          string
	Title       string
	Description string
}

// Section is a rendered grouping of posts under a theme heading. Starred
// marks the dedicated favorites section.
type Section struct {
	Theme   Theme
	Starred bool
	Posts   []Post
}

// Edition is one generated newspaper: the favorites section followed by the
// themed sections, plus the metadata printed in the masthead and footer.
type Edition struct {
	Handle      string
	Date        string
	GeneratedAt time.Time
	Favorites   []Post
	Sections    []Section
}

// PostCount counts the posts across all sections, favorites excluded.
func (e Edition) PostCount() int {
	n := 0
	for _, s := range e.Sections {
		n += len(s.Posts)
	}
	return n
}
