package layout

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"regexp"
	"sort"
	"strings"

	"github.com/BenHamm/bluesky-times/model"
	"github.com/BenHamm/bluesky-times/utils"
	"github.com/bbalet/stopwords"
	"github.com/psykhi/wordclouds"
)

var wordRe = regexp.MustCompile("[A-Za-z]+")

// AppendWordCloud draws a word cloud from the day's post text and appends it
// as a closing full-width section. The font file must exist on disk; callers
// treat an error as "skip the cloud", never as a failed edition.
func AppendWordCloud(blocks []Block, posts []model.Post, conf CloudConf) ([]Block, error) {
	words := collectWords(posts, conf.MaxWords)
	if len(words) == 0 {
		return blocks, fmt.Errorf("no words to draw")
	}
	if exists, _ := utils.PathExists(conf.FontFile); !exists {
		return blocks, fmt.Errorf("font file %q does not exist", conf.FontFile)
	}

	colors := make([]color.Color, 0)
	for _, c := range conf.Colors {
		colors = append(colors, c)
	}

	w := wordclouds.NewWordcloud(words,
		wordclouds.FontFile(conf.FontFile),
		wordclouds.FontMaxSize(conf.FontMaxSize),
		wordclouds.FontMinSize(conf.FontMinSize),
		wordclouds.Colors(colors),
		wordclouds.Height(conf.Height),
		wordclouds.Width(conf.Width),
		wordclouds.RandomPlacement(conf.RandomPlacement),
		wordclouds.BackgroundColor(conf.BackgroundColor))

	var buf bytes.Buffer
	if err := png.Encode(&buf, w.Draw()); err != nil {
		return blocks, fmt.Errorf("encoding word cloud: %w", err)
	}

	blocks = append(blocks,
		Block{Kind: KindSectionHeader, Heading: "Word Cloud"},
		Block{Kind: KindWordCloud, Cloud: &ImageTag{
			Src:    dataURI("image/png", buf.Bytes()),
			Alt:    "word cloud",
			Width:  conf.Width / 2,
			Height: conf.Height / 2,
		}})
	return blocks, nil
}

// collectWords tallies the interesting words across post, context and quote
// text, keeping the maxWords most frequent.
func collectWords(posts []model.Post, maxWords int) map[string]int {
	inputWords := map[string]int{}
	tally := func(content string) {
		relevant := stopwords.CleanString(content, "en", true)
		for _, w := range wordRe.FindAllString(relevant, -1) {
			lw := strings.ToLower(w)
			if len(lw) >= 3 {
				inputWords[lw] += 1
			}
		}
	}
	for _, p := range posts {
		tally(p.Text)
		if p.Quote != nil {
			tally(p.Quote.Text)
		}
	}

	wordList := make([]string, len(inputWords))
	i := 0
	for w := range inputWords {
		wordList[i] = w
		i++
	}
	sort.Slice(wordList, func(i, j int) bool {
		return inputWords[wordList[i]] < inputWords[wordList[j]]
	})
	if len(wordList) > maxWords {
		wordList = wordList[len(wordList)-maxWords:]
	}

	displayWords := map[string]int{}
	for _, w := range wordList {
		displayWords[w] = inputWords[w]
	}
	return displayWords
}
