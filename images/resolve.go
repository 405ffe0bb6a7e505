package images

import (
	"context"
	"sync"

	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/model"
	"github.com/sirupsen/logrus"
)

const resolveWorkers = 4

// ResolvePosts fetches every image referenced by the posts through the store
// and fills in the image data in place. Posts are handled concurrently with
// a bounded worker count, and each goroutine touches only its own post, so
// no slot is written twice. An image that cannot be fetched is logged and
// left without data; the post still renders.
func ResolvePosts(ctx context.Context, store Store, posts []model.Post) int {
	var wg sync.WaitGroup
	sem := make(chan struct{}, resolveWorkers)
	resolved := make([]int, len(posts))

	for i := range posts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			resolved[i] = resolvePost(ctx, store, &posts[i])
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range resolved {
		total += n
	}
	return total
}

func resolvePost(ctx context.Context, store Store, post *model.Post) int {
	count := resolveImages(ctx, store, post.URI, post.Images)
	if post.Quote != nil {
		count += resolveImages(ctx, store, post.URI, post.Quote.Images)
	}
	return count
}

func resolveImages(ctx context.Context, store Store, postURI string, imgs []model.Image) int {
	count := 0
	for i := range imgs {
		// Fullsize keeps text in screenshots legible on paper.
		url := imgs[i].FullsizeURL
		if url == "" {
			url = imgs[i].ThumbURL
		}
		if url == "" {
			continue
		}

		blob, err := store.Get(ctx, url)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{
				"post":  postURI,
				"image": url,
				"error": err.Error(),
			}).Warn("dropping unresolvable image")
			continue
		}

		imgs[i].Data = blob.Data
		imgs[i].ContentType = blob.ContentType
		if imgs[i].Width == 0 || imgs[i].Height == 0 {
			imgs[i].Width = blob.Width
			imgs[i].Height = blob.Height
		}
		count++
	}
	return count
}
