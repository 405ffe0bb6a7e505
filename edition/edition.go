package edition

import (
	"sort"
	"time"

	"github.com/BenHamm/bluesky-times/model"
	"github.com/BenHamm/bluesky-times/utils"
)

const (
	// FavoritesTitle heads the dedicated section of posts from configured
	// favorite accounts, always the first section of an edition.
	FavoritesTitle = "From Voices I Follow"

	// CatchAllTitle heads the final section holding posts the classifier
	// could not place in a named theme.
	CatchAllTitle = "Also Today"

	OrderRecent     = "recent"
	OrderEngagement = "engagement"
)

// Policy is the injected favorites configuration for one run.
type Policy struct {
	// Favorites holds normalized handles of the prioritized accounts.
	Favorites []string
	// Order picks how the favorites section is sorted: OrderRecent
	// (newest first) or OrderEngagement (most engaging first).
	Order string
	// FavoritesInThemes keeps favorite posts in their themed sections in
	// addition to the dedicated section. When false they appear only up
	// front.
	FavoritesInThemes bool
}

func DefaultPolicy(favorites []string) Policy {
	return Policy{Favorites: favorites, Order: OrderRecent, FavoritesInThemes: true}
}

// MarkFavorites flags posts whose author is in the favorites list.
func MarkFavorites(posts []model.Post, favorites []string) {
	set := make(map[string]bool, len(favorites))
	for _, handle := range favorites {
		set[utils.NormalizeHandle(handle)] = true
	}
	for i := range posts {
		posts[i].IsFavorite = set[utils.NormalizeHandle(posts[i].AuthorHandle)]
	}
}

// Engagement scores a post for the engagement ordering; reposts weigh double.
func Engagement(p model.Post) int {
	return p.Likes + 2*p.Reposts
}

// FavoritesSection returns the ordered posts for the dedicated favorites
// section. Ties fall back to fetch order so runs are deterministic.
func FavoritesSection(posts []model.Post, order string) []model.Post {
	var favorites []model.Post
	for _, p := range posts {
		if p.IsFavorite {
			favorites = append(favorites, p)
		}
	}

	sort.SliceStable(favorites, func(i, j int) bool {
		a, b := favorites[i], favorites[j]
		if order == OrderEngagement {
			if Engagement(a) != Engagement(b) {
				return Engagement(a) > Engagement(b)
			}
		} else if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.FetchOrder < b.FetchOrder
	})
	return favorites
}

// GroupThreads groups posts that share a resolved reply root, so replies to
// the same conversation stay adjacent on the page. Posts whose root is not
// in the working set form single-member threads. Thread order follows first
// appearance; members are chronological.
func GroupThreads(posts []model.Post) []model.Thread {
	working := make(map[string]bool, len(posts))
	for _, p := range posts {
		working[p.URI] = true
	}

	byRoot := make(map[string]int)
	var threads []model.Thread
	for _, p := range posts {
		root := p.URI
		if p.ReplyRoot != "" && working[p.ReplyRoot] {
			root = p.ReplyRoot
		}
		idx, ok := byRoot[root]
		if !ok {
			idx = len(threads)
			byRoot[root] = idx
			threads = append(threads, model.Thread{RootURI: root})
		}
		threads[idx].Posts = append(threads[idx].Posts, p)
	}

	for i := range threads {
		sortChronological(threads[i].Posts)
	}
	return threads
}

func sortChronological(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].FetchOrder < posts[j].FetchOrder
	})
}

// BuildSections distributes posts into themed sections: the named themes in
// classifier order, then a catch-all for everything assigned elsewhere or
// not at all. Every post lands in exactly one section. Empty sections are
// omitted. When includeFavorites is false, favorite posts are left to the
// dedicated section and skipped here.
func BuildSections(posts []model.Post, themeList []model.Theme, assignment map[string]string, includeFavorites bool) []model.Section {
	known := make(map[string]int, len(themeList))
	for i, theme := range themeList {
		known[theme.ID] = i
	}

	grouped := make([][]model.Post, len(themeList))
	var catchAll []model.Post
	for _, p := range posts {
		if p.IsFavorite && !includeFavorites {
			continue
		}
		if idx, ok := known[assignment[p.URI]]; ok {
			grouped[idx] = append(grouped[idx], p)
		} else {
			catchAll = append(catchAll, p)
		}
	}

	var sections []model.Section
	for i, theme := range themeList {
		if len(grouped[i]) == 0 {
			continue
		}
		sections = append(sections, model.Section{
			Theme: theme,
			Posts: orderForSection(grouped[i]),
		})
	}
	if len(catchAll) > 0 {
		sections = append(sections, model.Section{
			Theme: model.Theme{ID: "misc", Title: CatchAllTitle},
			Posts: orderForSection(catchAll),
		})
	}
	return sections
}

// orderForSection flattens a section's posts with conversations kept
// together: favorite threads lead, threads run oldest first, and thread
// members stay chronological.
func orderForSection(posts []model.Post) []model.Post {
	threads := GroupThreads(posts)

	sort.SliceStable(threads, func(i, j int) bool {
		a, b := threads[i], threads[j]
		if threadIsFavorite(a) != threadIsFavorite(b) {
			return threadIsFavorite(a)
		}
		at, bt := a.StartedAt(), b.StartedAt()
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return minFetchOrder(a) < minFetchOrder(b)
	})

	ordered := make([]model.Post, 0, len(posts))
	for _, t := range threads {
		ordered = append(ordered, t.Posts...)
	}
	return ordered
}

func threadIsFavorite(t model.Thread) bool {
	for _, p := range t.Posts {
		if p.IsFavorite {
			return true
		}
	}
	return false
}

func minFetchOrder(t model.Thread) int {
	min := t.Posts[0].FetchOrder
	for _, p := range t.Posts[1:] {
		if p.FetchOrder < min {
			min = p.FetchOrder
		}
	}
	return min
}

// Assemble builds the complete edition for one run: favorites flagged and
// pulled into the leading section, then the themed sections.
func Assemble(handle, date string, generatedAt time.Time, posts []model.Post, themeList []model.Theme, assignment map[string]string, policy Policy) model.Edition {
	MarkFavorites(posts, policy.Favorites)

	return model.Edition{
		Handle:      handle,
		Date:        date,
		GeneratedAt: generatedAt,
		Favorites:   FavoritesSection(posts, policy.Order),
		Sections:    BuildSections(posts, themeList, assignment, policy.FavoritesInThemes),
	}
}
