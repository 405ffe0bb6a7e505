package bluesky

import (
	"context"
	"time"

	"github.com/BenHamm/bluesky-times/logger"
	"github.com/tidwall/gjson"
)

const (
	pageSize               = 100
	postsPerHydrateCall    = 25
	maxSupplementalParents = 50
)

// Fetcher pulls the session user's timeline down to a Batch, paging by
// cursor until the post limit or the end of the feed.
type Fetcher struct {
	client *Client
	limit  int
}

func NewFetcher(client *Client, limit int) *Fetcher {
	return &Fetcher{client: client, limit: limit}
}

func (f *Fetcher) FetchBatch(ctx context.Context, handle string) (*Batch, error) {
	batch := &Batch{Handle: handle, FetchedAt: time.Now()}
	seen := make(map[string]bool)

	cursor := ""
	for page := 1; len(batch.Feed) < f.limit; page++ {
		n := f.limit - len(batch.Feed)
		if n > pageSize {
			n = pageSize
		}
		feed, next, err := f.client.Timeline(ctx, cursor, n)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, item := range feed {
			if seen[item.Post.URI] {
				continue
			}
			seen[item.Post.URI] = true
			batch.Feed = append(batch.Feed, item)
			added++
		}
		logger.Log.Debugf("timeline page %d: %d items, %d new", page, len(feed), added)

		// Pages can run short of the requested limit when the server
		// filters items, so a short page does not end the feed. An
		// empty page, a missing cursor, or a page of nothing but
		// already-seen posts does; cursor chains can replay known
		// URIs indefinitely.
		if next == "" || len(feed) == 0 || added == 0 {
			break
		}
		cursor = next
	}

	if err := f.hydrateParents(ctx, batch); err != nil {
		// Parents only feed context lines, so a failed hydration degrades
		// the run instead of aborting it.
		logger.Log.WithError(err).Warn("could not hydrate reply parents")
	}

	logger.Log.Infof("fetched %d posts for @%s (%d supplemental parents)",
		len(batch.Feed), handle, len(batch.Parents))
	return batch, nil
}

// hydrateParents fetches reply parents referenced by the batch but not
// present in it, so cache replays can still synthesize thread context.
func (f *Fetcher) hydrateParents(ctx context.Context, batch *Batch) error {
	known := make(map[string]bool, len(batch.Feed))
	for _, item := range batch.Feed {
		known[item.Post.URI] = true
		if item.Reply != nil {
			if len(item.Reply.Parent.Record) > 0 {
				known[item.Reply.Parent.URI] = true
			}
			if len(item.Reply.Root.Record) > 0 {
				known[item.Reply.Root.URI] = true
			}
		}
	}

	var missing []string
	for _, item := range batch.Feed {
		parentURI := gjson.GetBytes(item.Post.Record, "reply.parent.uri").String()
		if parentURI == "" || known[parentURI] {
			continue
		}
		known[parentURI] = true
		missing = append(missing, parentURI)
		if len(missing) >= maxSupplementalParents {
			break
		}
	}

	for start := 0; start < len(missing); start += postsPerHydrateCall {
		end := start + postsPerHydrateCall
		if end > len(missing) {
			end = len(missing)
		}
		views, err := f.client.Posts(ctx, missing[start:end])
		if err != nil {
			return err
		}
		batch.Parents = append(batch.Parents, views...)
	}
	return nil
}
