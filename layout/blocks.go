package layout

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/BenHamm/bluesky-times/edition"
	"github.com/BenHamm/bluesky-times/model"
	"github.com/BenHamm/bluesky-times/utils"
)

type BlockKind string

const (
	KindMasthead      BlockKind = "masthead"
	KindSectionHeader BlockKind = "section-header"
	KindPost          BlockKind = "post"
	KindWordCloud     BlockKind = "wordcloud"
)

// Block is one element of the linear document sequence. Identical editions
// always produce identical block sequences; the renderer never reorders.
type Block struct {
	Kind BlockKind

	// KindMasthead
	Masthead string
	Tagline  string
	DateLine string

	// KindSectionHeader
	Heading     string
	Description string
	Starred     bool

	// KindPost
	Post *PostCard

	// KindWordCloud
	Cloud *ImageTag
}

// PostCard is a post prepared for rendering: times formatted, images scaled
// and inlined, everything the template needs and nothing else.
type PostCard struct {
	AuthorName   string
	AuthorHandle string
	Favorite     bool
	RepostedBy   string
	Text         string
	Context      string
	Images       []ImageTag
	MultiImage   bool
	Quote        *QuoteCard
	Link         *LinkCard
	Likes        int
	Reposts      int
	Replies      int
	ShowStats    bool
	TimeLine     string
}

type QuoteCard struct {
	AuthorName   string
	AuthorHandle string
	Text         string
	Images       []ImageTag
}

type LinkCard struct {
	Title       string
	Description string
}

// ImageTag carries an inlined image with explicit print dimensions, already
// capped to the style's bounds.
type ImageTag struct {
	Src    template.URL
	Alt    string
	Width  int
	Height int
}

// BuildBlocks flattens an edition into the block sequence: masthead, the
// starred favorites section when non-empty, then each themed section in
// order.
func BuildBlocks(ed model.Edition, conf Conf) []Block {
	blocks := []Block{{
		Kind:     KindMasthead,
		Masthead: conf.Masthead,
		Tagline:  conf.Tagline,
		DateLine: formatDate(ed.Date),
	}}

	if len(ed.Favorites) > 0 {
		blocks = append(blocks, Block{
			Kind:    KindSectionHeader,
			Heading: edition.FavoritesTitle,
			Starred: true,
		})
		for _, p := range ed.Favorites {
			blocks = append(blocks, Block{Kind: KindPost, Post: buildPostCard(p, conf)})
		}
	}

	for _, section := range ed.Sections {
		blocks = append(blocks, Block{
			Kind:        KindSectionHeader,
			Heading:     section.Theme.Title,
			Description: section.Theme.Description,
		})
		for _, p := range section.Posts {
			blocks = append(blocks, Block{Kind: KindPost, Post: buildPostCard(p, conf)})
		}
	}
	return blocks
}

func buildPostCard(p model.Post, conf Conf) *PostCard {
	card := &PostCard{
		AuthorName:   p.AuthorName,
		AuthorHandle: p.AuthorHandle,
		Favorite:     p.IsFavorite,
		Text:         p.Text,
		Context:      p.Context,
		Likes:        p.Likes,
		Reposts:      p.Reposts,
		Replies:      p.Replies,
		ShowStats:    p.Likes > 10 || p.Reposts > 5,
		TimeLine:     formatTime(p.CreatedAt),
	}
	if p.IsRepost {
		card.RepostedBy = p.RepostedBy
	}

	maxHeight := conf.MaxImageHeight
	if countResolved(p.Images) > 1 {
		card.MultiImage = true
		maxHeight = conf.MultiImageHeight
	}
	card.Images = buildImageTags(p.Images, conf.MaxImageWidth, maxHeight)

	if p.Quote != nil {
		card.Quote = &QuoteCard{
			AuthorName:   p.Quote.AuthorName,
			AuthorHandle: p.Quote.AuthorHandle,
			Text:         p.Quote.Text,
			Images:       buildImageTags(p.Quote.Images, conf.MaxImageWidth, conf.MultiImageHeight),
		}
	}
	if p.Link != nil {
		card.Link = &LinkCard{
			Title:       p.Link.Title,
			Description: utils.Truncate(p.Link.Description, 120),
		}
	}
	return card
}

func countResolved(imgs []model.Image) int {
	n := 0
	for _, img := range imgs {
		if len(img.Data) > 0 {
			n++
		}
	}
	return n
}

// buildImageTags inlines resolved images as data URIs. Unresolved images are
// omitted; the rest of the post renders regardless.
func buildImageTags(imgs []model.Image, maxWidth, maxHeight int) []ImageTag {
	var tags []ImageTag
	for _, img := range imgs {
		if len(img.Data) == 0 {
			continue
		}
		width, height := scaleToFit(img.Width, img.Height, maxWidth, maxHeight)
		tags = append(tags, ImageTag{
			Src:    dataURI(img.ContentType, img.Data),
			Alt:    img.Alt,
			Width:  width,
			Height: height,
		})
	}
	return tags
}

// scaleToFit shrinks intrinsic dimensions to the caps, keeping the aspect
// ratio. Images are never scaled up. Unknown dimensions get the width cap
// and no height, leaving the aspect to the engine.
func scaleToFit(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return maxWidth, 0
	}
	scale := 1.0
	if s := float64(maxWidth) / float64(width); s < scale {
		scale = s
	}
	if s := float64(maxHeight) / float64(height); s < scale {
		scale = s
	}
	scaledW := int(float64(width)*scale + 0.5)
	scaledH := int(float64(height)*scale + 0.5)
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}
	return scaledW, scaledH
}

func dataURI(contentType string, data []byte) template.URL {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return template.URL(fmt.Sprintf("data:%s;base64,%s",
		contentType, base64.StdEncoding.EncodeToString(data)))
}

// formatDate renders the edition day as a newspaper date line.
func formatDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Monday, January 2, 2006")
}

// formatTime renders a post timestamp as a short clock time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("3:04 PM")
}
