package bluesky

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/model"
	"github.com/BenHamm/bluesky-times/utils"
	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const maxParentDepth = 10

// postRecord is the app.bsky.feed.post record inside a PostView.
type postRecord struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Reply     *recordReply    `json:"reply,omitempty"`
	Embed     json.RawMessage `json:"embed,omitempty"`
}

type recordReply struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Normalize turns a raw batch into the working set of posts. Posts authored
// by the batch's own handle are dropped, malformed records are skipped and
// logged, and reply posts get their root and context line resolved.
// Normalization never fails as a whole.
func Normalize(batch *Batch) []model.Post {
	self := utils.NormalizeHandle(batch.Handle)
	parents := collectParents(batch)

	var posts []model.Post
	working := make(map[string]bool)
	for _, item := range batch.Feed {
		post, err := ExtractPost(item, len(posts))
		if err != nil {
			logger.Log.WithFields(logrus.Fields{
				"uri":   item.Post.URI,
				"error": err.Error(),
			}).Warn("skipping malformed record")
			continue
		}
		if utils.NormalizeHandle(post.AuthorHandle) == self {
			continue
		}
		working[post.URI] = true
		posts = append(posts, post)
	}

	for i := range posts {
		resolveThreadContext(&posts[i], working, parents)
	}
	return posts
}

// parentInfo is the slim view of a potential ancestor used for context
// lines and chain walking.
type parentInfo struct {
	handle string
	text   string
	parent string
}

func collectParents(batch *Batch) map[string]parentInfo {
	parents := make(map[string]parentInfo)
	add := func(v PostView) {
		if v.URI == "" || len(v.Record) == 0 {
			return
		}
		if _, ok := parents[v.URI]; ok {
			return
		}
		rec := gjson.ParseBytes(v.Record)
		parents[v.URI] = parentInfo{
			handle: v.Author.Handle,
			text:   rec.Get("text").String(),
			parent: rec.Get("reply.parent.uri").String(),
		}
	}

	for _, v := range batch.Parents {
		add(v)
	}
	for _, item := range batch.Feed {
		add(item.Post)
		if item.Reply != nil {
			add(item.Reply.Parent)
			add(item.Reply.Root)
		}
	}
	return parents
}

func resolveThreadContext(p *model.Post, working map[string]bool, parents map[string]parentInfo) {
	if p.ReplyParent == "" {
		return
	}
	if p.ReplyRoot == "" {
		p.ReplyRoot = resolveRoot(p.URI, p.ReplyParent, parents)
	}
	if working[p.ReplyParent] {
		// The parent renders as its own post, no context line needed.
		return
	}
	if info, ok := parents[p.ReplyParent]; ok {
		if info.text != "" {
			p.Context = fmt.Sprintf("replying to @%s: %q", info.handle, utils.Truncate(info.text, 80))
		} else {
			p.Context = fmt.Sprintf("replying to @%s", info.handle)
		}
		return
	}
	p.Context = "replying to an earlier post"
}

// resolveRoot walks the parent chain iteratively to the topmost known
// ancestor. The depth bound and visited set guard against cycles in
// malformed data.
func resolveRoot(selfURI, parentURI string, parents map[string]parentInfo) string {
	visited := map[string]bool{selfURI: true}
	current := parentURI
	root := parentURI
	for depth := 0; depth < maxParentDepth; depth++ {
		if visited[current] {
			break
		}
		visited[current] = true
		root = current
		info, ok := parents[current]
		if !ok || info.parent == "" {
			break
		}
		current = info.parent
	}
	return root
}

// ExtractPost converts one feed item into a Post. It returns an error only
// for records that cannot be represented at all; a bad embed or image
// reference degrades to a post without that part.
func ExtractPost(item FeedItem, order int) (model.Post, error) {
	view := item.Post
	if view.URI == "" {
		return model.Post{}, errors.New("post has no uri")
	}
	if len(view.Record) == 0 {
		return model.Post{}, errors.New("post has no record")
	}
	var rec postRecord
	if err := json.Unmarshal(view.Record, &rec); err != nil {
		return model.Post{}, fmt.Errorf("undecodable record: %w", err)
	}

	post := model.Post{
		URI:          view.URI,
		CID:          view.CID,
		AuthorHandle: view.Author.Handle,
		AuthorName:   displayName(view.Author),
		Text:         rec.Text,
		CreatedAt:    parseTime(rec.CreatedAt, view.IndexedAt),
		Likes:        view.LikeCount,
		Reposts:      view.RepostCount,
		Replies:      view.ReplyCount,
		FetchOrder:   order,
	}
	if rec.Reply != nil {
		post.ReplyParent = rec.Reply.Parent.URI
		post.ReplyRoot = rec.Reply.Root.URI
	}
	post.Images, post.Quote, post.Link = extractEmbed(view.Embed)

	if gjson.GetBytes(item.Reason, "$type").String() == "app.bsky.feed.defs#reasonRepost" {
		post.IsRepost = true
		post.RepostedBy = gjson.GetBytes(item.Reason, "by.displayName").String()
		if post.RepostedBy == "" {
			post.RepostedBy = gjson.GetBytes(item.Reason, "by.handle").String()
		}
	}
	return post, nil
}

// extractEmbed navigates the embed view union by $type.
func extractEmbed(embed json.RawMessage) (images []model.Image, quote *model.QuotePost, link *model.ExternalLink) {
	if len(embed) == 0 {
		return
	}
	root := gjson.ParseBytes(embed)
	switch embedType(root) {
	case "images":
		images = extractImages(root.Get("images"))
	case "external":
		link = extractExternal(root.Get("external"))
	case "recordWithMedia":
		quote = extractQuote(root.Get("record.record"))
		media := root.Get("media")
		switch embedType(media) {
		case "images":
			images = extractImages(media.Get("images"))
		case "external":
			link = extractExternal(media.Get("external"))
		}
	case "record":
		quote = extractQuote(root.Get("record"))
	}
	return
}

func embedType(v gjson.Result) string {
	t := v.Get("$type").String()
	switch {
	case strings.HasPrefix(t, "app.bsky.embed.images"):
		return "images"
	case strings.HasPrefix(t, "app.bsky.embed.external"):
		return "external"
	case strings.HasPrefix(t, "app.bsky.embed.recordWithMedia"):
		return "recordWithMedia"
	case strings.HasPrefix(t, "app.bsky.embed.record"):
		return "record"
	}
	return ""
}

func extractImages(arr gjson.Result) (images []model.Image) {
	for _, img := range arr.Array() {
		fullsize := img.Get("fullsize").String()
		thumb := img.Get("thumb").String()
		if fullsize == "" && thumb == "" {
			// Malformed image reference, drop it and keep the post.
			continue
		}
		images = append(images, model.Image{
			FullsizeURL: fullsize,
			ThumbURL:    thumb,
			Alt:         img.Get("alt").String(),
			Width:       int(img.Get("aspectRatio.width").Int()),
			Height:      int(img.Get("aspectRatio.height").Int()),
		})
	}
	return
}

func extractExternal(ext gjson.Result) *model.ExternalLink {
	uri := ext.Get("uri").String()
	title := ext.Get("title").String()
	if uri == "" && title == "" {
		return nil
	}
	return &model.ExternalLink{
		URI:         uri,
		Title:       title,
		Description: ext.Get("description").String(),
	}
}

func extractQuote(rec gjson.Result) *model.QuotePost {
	if !rec.Exists() {
		return nil
	}
	if t := rec.Get("$type").String(); t != "" && !strings.HasSuffix(t, "#viewRecord") {
		// viewNotFound, viewBlocked, viewDetached
		return nil
	}
	handle := rec.Get("author.handle").String()
	text := rec.Get("value.text").String()
	if handle == "" && text == "" {
		return nil
	}
	name := rec.Get("author.displayName").String()
	if name == "" {
		name = handle
	}
	quote := &model.QuotePost{
		AuthorHandle: handle,
		AuthorName:   name,
		Text:         text,
	}
	for _, emb := range rec.Get("embeds").Array() {
		if embedType(emb) == "images" {
			quote.Images = extractImages(emb.Get("images"))
			break
		}
	}
	return quote
}

func displayName(a Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

func parseTime(createdAt, indexedAt string) time.Time {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		return t
	}
	if t, err := dateparse.ParseAny(createdAt); err == nil {
		return t
	}
	if t, err := dateparse.ParseAny(indexedAt); err == nil {
		return t
	}
	return time.Time{}
}
