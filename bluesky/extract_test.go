package bluesky

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustItem(t *testing.T, raw string) FeedItem {
	t.Helper()
	var item FeedItem
	err := json.Unmarshal([]byte(raw), &item)
	require.Equal(t, nil, err)
	return item
}

const imagePostJSON = `{
	"post": {
		"uri": "at://did:plc:alice/app.bsky.feed.post/3k1",
		"cid": "bafyalice1",
		"author": {"did": "did:plc:alice", "handle": "alice.bsky.social", "displayName": "Alice"},
		"record": {
			"$type": "app.bsky.feed.post",
			"text": "solar output doubled again",
			"createdAt": "2026-08-25T14:03:00.000Z"
		},
		"embed": {
			"$type": "app.bsky.embed.images#view",
			"images": [
				{
					"thumb": "https://cdn.bsky.app/img/feed_thumbnail/plain/did:plc:alice/bafyimg1@jpeg",
					"fullsize": "https://cdn.bsky.app/img/feed_fullsize/plain/did:plc:alice/bafyimg1@jpeg",
					"alt": "a chart of solar capacity",
					"aspectRatio": {"width": 1200, "height": 800}
				},
				{
					"alt": "missing urls, should be dropped"
				}
			]
		},
		"replyCount": 1,
		"repostCount": 2,
		"likeCount": 30,
		"indexedAt": "2026-08-25T14:03:05.000Z"
	}
}`

func TestExtractImagesEmbed(t *testing.T) {
	post, err := ExtractPost(mustItem(t, imagePostJSON), 0)
	require.Equal(t, nil, err)

	require.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3k1", post.URI)
	require.Equal(t, "alice.bsky.social", post.AuthorHandle)
	require.Equal(t, "Alice", post.AuthorName)
	require.Equal(t, "solar output doubled again", post.Text)
	require.Equal(t, 30, post.Likes)
	require.Equal(t, 2, post.Reposts)
	require.Equal(t, time.Date(2026, 8, 25, 14, 3, 0, 0, time.UTC), post.CreatedAt.UTC())

	// The entry without URLs is dropped, the post keeps the valid one
	require.Equal(t, 1, len(post.Images))
	require.Equal(t, "a chart of solar capacity", post.Images[0].Alt)
	require.Equal(t, 1200, post.Images[0].Width)
	require.Equal(t, 800, post.Images[0].Height)
	require.Equal(t, false, post.IsRepost)
}

func TestExtractExternalEmbed(t *testing.T) {
	item := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:bob/app.bsky.feed.post/3k2",
			"cid": "bafybob1",
			"author": {"did": "did:plc:bob", "handle": "bob.bsky.social"},
			"record": {"$type": "app.bsky.feed.post", "text": "worth a read", "createdAt": "2026-08-25T10:00:00Z"},
			"embed": {
				"$type": "app.bsky.embed.external#view",
				"external": {
					"uri": "https://example.com/story",
					"title": "A Long Story",
					"description": "Something happened somewhere."
				}
			},
			"indexedAt": "2026-08-25T10:00:01Z"
		}
	}`)

	post, err := ExtractPost(item, 0)
	require.Equal(t, nil, err)
	require.Equal(t, "bob.bsky.social", post.AuthorName)
	require.NotNil(t, post.Link)
	require.Equal(t, "A Long Story", post.Link.Title)
	require.Equal(t, "https://example.com/story", post.Link.URI)
	require.Equal(t, 0, len(post.Images))
}

func TestExtractQuoteEmbed(t *testing.T) {
	item := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:bob/app.bsky.feed.post/3k3",
			"cid": "bafybob2",
			"author": {"did": "did:plc:bob", "handle": "bob.bsky.social", "displayName": "Bob"},
			"record": {"$type": "app.bsky.feed.post", "text": "this is wild", "createdAt": "2026-08-25T11:00:00Z"},
			"embed": {
				"$type": "app.bsky.embed.record#view",
				"record": {
					"$type": "app.bsky.embed.record#viewRecord",
					"uri": "at://did:plc:carol/app.bsky.feed.post/3k0",
					"author": {"did": "did:plc:carol", "handle": "carol.bsky.social", "displayName": "Carol"},
					"value": {"$type": "app.bsky.feed.post", "text": "original hot take", "createdAt": "2026-08-25T09:00:00Z"},
					"embeds": [{
						"$type": "app.bsky.embed.images#view",
						"images": [{
							"thumb": "https://cdn.bsky.app/img/feed_thumbnail/plain/did:plc:carol/bafyq@jpeg",
							"fullsize": "https://cdn.bsky.app/img/feed_fullsize/plain/did:plc:carol/bafyq@jpeg",
							"alt": ""
						}]
					}]
				}
			},
			"indexedAt": "2026-08-25T11:00:01Z"
		}
	}`)

	post, err := ExtractPost(item, 0)
	require.Equal(t, nil, err)
	require.NotNil(t, post.Quote)
	require.Equal(t, "carol.bsky.social", post.Quote.AuthorHandle)
	require.Equal(t, "Carol", post.Quote.AuthorName)
	require.Equal(t, "original hot take", post.Quote.Text)
	require.Equal(t, 1, len(post.Quote.Images))
}

func TestExtractQuoteNotFound(t *testing.T) {
	item := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:bob/app.bsky.feed.post/3k4",
			"cid": "bafybob3",
			"author": {"did": "did:plc:bob", "handle": "bob.bsky.social"},
			"record": {"$type": "app.bsky.feed.post", "text": "quoting a ghost", "createdAt": "2026-08-25T11:30:00Z"},
			"embed": {
				"$type": "app.bsky.embed.record#view",
				"record": {
					"$type": "app.bsky.embed.record#viewNotFound",
					"uri": "at://did:plc:gone/app.bsky.feed.post/3k0",
					"notFound": true
				}
			},
			"indexedAt": "2026-08-25T11:30:01Z"
		}
	}`)

	post, err := ExtractPost(item, 0)
	require.Equal(t, nil, err)
	require.Nil(t, post.Quote)
}

func TestExtractRecordWithMedia(t *testing.T) {
	item := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:bob/app.bsky.feed.post/3k5",
			"cid": "bafybob4",
			"author": {"did": "did:plc:bob", "handle": "bob.bsky.social"},
			"record": {"$type": "app.bsky.feed.post", "text": "quote plus picture", "createdAt": "2026-08-25T12:00:00Z"},
			"embed": {
				"$type": "app.bsky.embed.recordWithMedia#view",
				"record": {
					"record": {
						"$type": "app.bsky.embed.record#viewRecord",
						"uri": "at://did:plc:carol/app.bsky.feed.post/3k0",
						"author": {"did": "did:plc:carol", "handle": "carol.bsky.social"},
						"value": {"$type": "app.bsky.feed.post", "text": "the quoted bit"}
					}
				},
				"media": {
					"$type": "app.bsky.embed.images#view",
					"images": [{
						"thumb": "https://cdn.bsky.app/img/feed_thumbnail/plain/did:plc:bob/bafym@jpeg",
						"fullsize": "https://cdn.bsky.app/img/feed_fullsize/plain/did:plc:bob/bafym@jpeg",
						"alt": "attached",
						"aspectRatio": {"width": 640, "height": 480}
					}]
				}
			},
			"indexedAt": "2026-08-25T12:00:01Z"
		}
	}`)

	post, err := ExtractPost(item, 0)
	require.Equal(t, nil, err)
	require.NotNil(t, post.Quote)
	require.Equal(t, "the quoted bit", post.Quote.Text)
	require.Equal(t, 1, len(post.Images))
	require.Equal(t, 640, post.Images[0].Width)
}

func TestExtractRepostReason(t *testing.T) {
	item := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:carol/app.bsky.feed.post/3k6",
			"cid": "bafycarol1",
			"author": {"did": "did:plc:carol", "handle": "carol.bsky.social", "displayName": "Carol"},
			"record": {"$type": "app.bsky.feed.post", "text": "reposted content", "createdAt": "2026-08-25T08:00:00Z"},
			"indexedAt": "2026-08-25T08:00:01Z"
		},
		"reason": {
			"$type": "app.bsky.feed.defs#reasonRepost",
			"by": {"did": "did:plc:dave", "handle": "dave.bsky.social", "displayName": "Dave"},
			"indexedAt": "2026-08-25T13:00:00Z"
		}
	}`)

	post, err := ExtractPost(item, 0)
	require.Equal(t, nil, err)
	require.Equal(t, true, post.IsRepost)
	require.Equal(t, "Dave", post.RepostedBy)
	require.Equal(t, "carol.bsky.social", post.AuthorHandle)
}

func TestExtractReplyRefs(t *testing.T) {
	item := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:bob/app.bsky.feed.post/3k7",
			"cid": "bafybob5",
			"author": {"did": "did:plc:bob", "handle": "bob.bsky.social"},
			"record": {
				"$type": "app.bsky.feed.post",
				"text": "strong disagree",
				"createdAt": "2026-08-25T15:00:00Z",
				"reply": {
					"root": {"uri": "at://did:plc:carol/app.bsky.feed.post/3r0", "cid": "bafyroot"},
					"parent": {"uri": "at://did:plc:carol/app.bsky.feed.post/3r1", "cid": "bafyparent"}
				}
			},
			"indexedAt": "2026-08-25T15:00:01Z"
		}
	}`)

	post, err := ExtractPost(item, 0)
	require.Equal(t, nil, err)
	require.Equal(t, "at://did:plc:carol/app.bsky.feed.post/3r1", post.ReplyParent)
	require.Equal(t, "at://did:plc:carol/app.bsky.feed.post/3r0", post.ReplyRoot)
}

func TestExtractMalformedRecords(t *testing.T) {
	_, err := ExtractPost(FeedItem{}, 0)
	require.NotEqual(t, nil, err)

	noRecord := mustItem(t, `{
		"post": {
			"uri": "at://did:plc:x/app.bsky.feed.post/1",
			"cid": "bafyx",
			"author": {"did": "did:plc:x", "handle": "x.bsky.social"},
			"indexedAt": "2026-08-25T15:00:01Z"
		}
	}`)
	_, err = ExtractPost(noRecord, 0)
	require.NotEqual(t, nil, err)

	badRecord := FeedItem{Post: PostView{
		URI:    "at://did:plc:x/app.bsky.feed.post/2",
		Record: json.RawMessage(`"just a string"`),
	}}
	_, err = ExtractPost(badRecord, 0)
	require.NotEqual(t, nil, err)
}

func feedItemWithText(uri, handle, text, createdAt string) FeedItem {
	rec, _ := json.Marshal(map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": createdAt,
	})
	return FeedItem{Post: PostView{
		URI:       uri,
		CID:       "cid-" + handle,
		Author:    Author{DID: "did:plc:" + handle, Handle: handle},
		Record:    rec,
		IndexedAt: createdAt,
	}}
}

func replyItem(uri, handle, text, createdAt, parentURI, rootURI string) FeedItem {
	rec, _ := json.Marshal(map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": createdAt,
		"reply": map[string]any{
			"root":   map[string]string{"uri": rootURI, "cid": "c"},
			"parent": map[string]string{"uri": parentURI, "cid": "c"},
		},
	})
	return FeedItem{Post: PostView{
		URI:       uri,
		CID:       "cid-" + handle,
		Author:    Author{DID: "did:plc:" + handle, Handle: handle},
		Record:    rec,
		IndexedAt: createdAt,
	}}
}

func TestNormalizeFiltersOwnPosts(t *testing.T) {
	batch := &Batch{
		Handle: "me.bsky.social",
		Feed: []FeedItem{
			feedItemWithText("at://did:plc:me/app.bsky.feed.post/1", "me.bsky.social", "my own post", "2026-08-25T09:00:00Z"),
			feedItemWithText("at://did:plc:alice/app.bsky.feed.post/2", "alice.bsky.social", "not mine", "2026-08-25T10:00:00Z"),
			{Post: PostView{URI: "at://did:plc:broken/app.bsky.feed.post/3"}},
		},
	}

	posts := Normalize(batch)
	require.Equal(t, 1, len(posts))
	require.Equal(t, "alice.bsky.social", posts[0].AuthorHandle)
}

func TestNormalizeContextLines(t *testing.T) {
	rootURI := "at://did:plc:alice/app.bsky.feed.post/root"
	offFeedURI := "at://did:plc:carol/app.bsky.feed.post/offfeed"

	carolParent := feedItemWithText(offFeedURI, "carol.bsky.social", "the original point", "2026-08-25T08:00:00Z").Post

	batch := &Batch{
		Handle: "me.bsky.social",
		Feed: []FeedItem{
			feedItemWithText(rootURI, "alice.bsky.social", "thread root", "2026-08-25T09:00:00Z"),
			replyItem("at://did:plc:bob/app.bsky.feed.post/r1", "bob.bsky.social",
				"reply to in-batch root", "2026-08-25T09:05:00Z", rootURI, rootURI),
			replyItem("at://did:plc:dave/app.bsky.feed.post/r2", "dave.bsky.social",
				"reply to carol", "2026-08-25T09:10:00Z", offFeedURI, offFeedURI),
			replyItem("at://did:plc:eve/app.bsky.feed.post/r3", "eve.bsky.social",
				"reply to nowhere", "2026-08-25T09:15:00Z", "at://did:plc:gone/app.bsky.feed.post/x", ""),
		},
		Parents: []PostView{carolParent},
	}

	posts := Normalize(batch)
	require.Equal(t, 4, len(posts))

	byHandle := make(map[string]int)
	for i, p := range posts {
		byHandle[p.AuthorHandle] = i
	}

	// Parent renders on its own, so no context line
	require.Equal(t, "", posts[byHandle["bob.bsky.social"]].Context)

	// Parent known only from the supplemental records
	require.Equal(t, `replying to @carol.bsky.social: "the original point"`,
		posts[byHandle["dave.bsky.social"]].Context)

	// Parent reference is entirely unresolvable
	eve := posts[byHandle["eve.bsky.social"]]
	require.Equal(t, "replying to an earlier post", eve.Context)
	require.Equal(t, "at://did:plc:gone/app.bsky.feed.post/x", eve.ReplyRoot)
}

func TestResolveRootBoundsAndCycles(t *testing.T) {
	parents := map[string]parentInfo{
		"a": {handle: "x", parent: "b"},
		"b": {handle: "y", parent: "a"},
	}
	// A cycle terminates instead of looping forever
	root := resolveRoot("self", "a", parents)
	require.Equal(t, "b", root)

	// A long chain stops at the depth bound
	chain := map[string]parentInfo{}
	for i := 0; i < 30; i++ {
		chain[uriN(i)] = parentInfo{handle: "x", parent: uriN(i + 1)}
	}
	root = resolveRoot("self", uriN(0), chain)
	require.Equal(t, uriN(maxParentDepth-1), root)
}

func uriN(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestParseTimeFallbacks(t *testing.T) {
	ts := parseTime("2026-08-25T14:03:00.000Z", "")
	require.Equal(t, 2026, ts.Year())

	ts = parseTime("not a time", "2026-08-25T14:03:05Z")
	require.Equal(t, 2026, ts.Year())

	ts = parseTime("", "")
	require.Equal(t, true, ts.IsZero())
}
