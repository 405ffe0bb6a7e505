package themes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/model"
	"github.com/BenHamm/bluesky-times/utils"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

const (
	// MiscID is the assignment for posts the model could not place; the
	// edition collects them into the catch-all section.
	MiscID = "misc"

	// FallbackID and FallbackTitle describe the single theme used when
	// classification is disabled or downgraded.
	FallbackID    = "all"
	FallbackTitle = "All Posts"

	chunkSize       = 15
	maxSummaryPosts = 80
	maxThemes       = 3
	callTimeout     = 60 * time.Second
	maxRetries      = 3
)

var retryBaseDelay = 2 * time.Second

// ErrUnparsable marks a classifier response that did not match the JSON
// contract. It downgrades the whole run to the single fallback theme.
var ErrUnparsable = errors.New("unparsable classifier response")

// Result is a complete classification: the ordered themes and an assignment
// of every post URI to exactly one theme ID.
type Result struct {
	Themes     []model.Theme
	Assignment map[string]string
	Fallback   bool
}

// Fallback assigns every post to the single "All Posts" theme. It serves
// both the disabled mode and the downgrade path after a classification
// failure.
func Fallback(posts []model.Post) Result {
	assignment := make(map[string]string, len(posts))
	for _, p := range posts {
		assignment[p.URI] = FallbackID
	}
	return Result{
		Themes:     []model.Theme{{ID: FallbackID, Title: FallbackTitle}},
		Assignment: assignment,
		Fallback:   true,
	}
}

// Config carries the OpenRouter connection settings. Model identity is
// configuration, never hardcoded.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Classifier discovers the day's themes and assigns each post to one.
type Classifier struct {
	cm      einomodel.ChatModel
	limiter *rate.Limiter
	modelID string
}

func NewClassifier(ctx context.Context, cfg Config) (*Classifier, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing chat model: %w", err)
	}
	return newClassifier(cm, cfg.Model), nil
}

func newClassifier(cm einomodel.ChatModel, modelID string) *Classifier {
	return &Classifier{
		cm:      cm,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		modelID: modelID,
	}
}

// Classify runs theme discovery and post assignment. It never returns an
// error: any failure downgrades the run to the fallback single theme, since
// a missing classification must not stop the presses.
func (c *Classifier) Classify(ctx context.Context, posts []model.Post) Result {
	if len(posts) == 0 {
		return Fallback(posts)
	}

	logger.Log.Infof("identifying themes across %d posts using %s", len(posts), c.modelID)
	themeList, err := c.identifyThemes(ctx, posts)
	if err != nil {
		logger.Log.WithError(err).Warn("theme discovery failed, downgrading to single-theme edition")
		return Fallback(posts)
	}

	assignment, err := c.assignThemes(ctx, posts, themeList)
	if err != nil {
		logger.Log.WithError(err).Warn("post classification failed, downgrading to single-theme edition")
		return Fallback(posts)
	}

	return Result{Themes: themeList, Assignment: assignment}
}

const discoveryPrompt = `Analyze these social media posts and identify the 2-3 MAJOR themes/topics that dominate the conversation today. These should be specific, newsworthy topics (not generic categories like "politics" or "humor").

Posts:
%s

Return ONLY a JSON array of theme objects, each with:
- "id": short lowercase slug (e.g., "nyt-trans-coverage")
- "title": human-readable headline for this theme
- "description": one sentence explaining this theme

Return ONLY the JSON array, no other text.`

type themeJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (c *Classifier) identifyThemes(ctx context.Context, posts []model.Post) ([]model.Theme, error) {
	var lines []string
	for _, p := range posts {
		if len(lines) >= maxSummaryPosts {
			break
		}
		summary := postSummary(p, 250)
		if summary == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("@%s: %s", p.AuthorHandle, summary))
	}

	content, err := c.generate(ctx, fmt.Sprintf(discoveryPrompt, strings.Join(lines, "\n")))
	if err != nil {
		return nil, err
	}

	var parsed []themeJSON
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: empty theme list", ErrUnparsable)
	}

	var themeList []model.Theme
	for _, t := range parsed {
		if t.ID == "" || t.Title == "" {
			return nil, fmt.Errorf("%w: theme missing id or title", ErrUnparsable)
		}
		themeList = append(themeList, model.Theme{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
		})
	}
	if len(themeList) > maxThemes {
		logger.Log.Debugf("model returned %d themes, keeping the first %d", len(themeList), maxThemes)
		themeList = themeList[:maxThemes]
	}

	titles := make([]string, len(themeList))
	for i, t := range themeList {
		titles[i] = t.Title
	}
	logger.Log.Infof("themes: %s", strings.Join(titles, " / "))
	return themeList, nil
}

const assignmentPrompt = `Classify each numbered post into ONE of these themes, or "misc" if it doesn't fit.

Themes:
%s
- misc: Posts that don't fit the major themes

Posts:
%s

Return ONLY a JSON object mapping post index to theme id.
Example: {"0": "first-theme-id", "1": "misc"}

Return ONLY the JSON object, no other text.`

// assignThemes classifies posts in chunks. Unknown theme IDs coerce to misc
// and unclassified posts default to misc, but a response that is not a JSON
// object of index keys fails the whole classification.
func (c *Classifier) assignThemes(ctx context.Context, posts []model.Post, themeList []model.Theme) (map[string]string, error) {
	themeIDs := make(map[string]bool, len(themeList))
	var descriptions []string
	for _, t := range themeList {
		themeIDs[t.ID] = true
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s - %s", t.ID, t.Title, t.Description))
	}
	themeBlock := strings.Join(descriptions, "\n")

	byIndex := make(map[int]string, len(posts))
	for start := 0; start < len(posts); start += chunkSize {
		end := start + chunkSize
		if end > len(posts) {
			end = len(posts)
		}

		var lines []string
		for i := start; i < end; i++ {
			lines = append(lines, fmt.Sprintf("[%d]: %s", i, postSummary(posts[i], 150)))
		}

		content, err := c.generate(ctx, fmt.Sprintf(assignmentPrompt, themeBlock, strings.Join(lines, "\n")))
		if err != nil {
			return nil, err
		}

		var chunk map[string]string
		if err := json.Unmarshal([]byte(content), &chunk); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		for key, themeID := range chunk {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(posts) {
				return nil, fmt.Errorf("%w: bad post index %q", ErrUnparsable, key)
			}
			if !themeIDs[themeID] {
				themeID = MiscID
			}
			byIndex[idx] = themeID
		}
	}

	assignment := make(map[string]string, len(posts))
	unclassified := 0
	for i, p := range posts {
		themeID, ok := byIndex[i]
		if !ok {
			themeID = MiscID
			unclassified++
		}
		assignment[p.URI] = themeID
	}
	if unclassified > 0 {
		logger.Log.Warnf("%d posts were not classified, placing them in the catch-all section", unclassified)
	}
	return assignment, nil
}

// generate performs one chat call with rate limiting and bounded retries on
// transport errors. Responses come back with any markdown fences stripped.
func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: "You classify social media posts for a newspaper digest. Respond with JSON only."},
		{Role: schema.User, Content: prompt},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			logger.Log.Debugf("retrying classification call in %v (attempt %d/%d): %v",
				delay, attempt, maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		resp, err := c.cm.Generate(callCtx, messages)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		return stripFences(resp.Content), nil
	}
	return "", lastErr
}

// stripFences removes a wrapping markdown code block, which models add even
// when told not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		} else {
			content = strings.TrimPrefix(content, "```")
		}
	}
	if strings.HasSuffix(content, "```") {
		content = content[:strings.LastIndex(content, "```")]
	}
	return strings.TrimSpace(content)
}

// postSummary renders a post as a one-line text summary for prompts. Quote
// text is folded in; images never travel to the model.
func postSummary(p model.Post, limit int) string {
	text := utils.Truncate(p.Text, limit)
	if p.Quote != nil && p.Quote.Text != "" {
		text = strings.TrimSpace(text + fmt.Sprintf(" [quoting @%s: %s]",
			p.Quote.AuthorHandle, utils.Truncate(p.Quote.Text, 100)))
	}
	return text
}
