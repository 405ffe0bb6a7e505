package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BenHamm/bluesky-times/bluesky"
	"github.com/BenHamm/bluesky-times/configuration"
	"github.com/BenHamm/bluesky-times/database"
	"github.com/BenHamm/bluesky-times/edition"
	"github.com/BenHamm/bluesky-times/images"
	"github.com/BenHamm/bluesky-times/layout"
	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/model"
	"github.com/BenHamm/bluesky-times/pdf"
	"github.com/BenHamm/bluesky-times/themes"
	"github.com/BenHamm/bluesky-times/utils"
	"github.com/bit101/go-ansi"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	useCache    bool
	noSave      bool
	noThemes    bool
	modelID     string
	output      string
	limit       int
	editionDate string
	openAfter   bool
	withCloud   bool
	styleFile   string

	isTty bool
)

func NewCommand() *cobra.Command {
	generateCommand := &cobra.Command{
		Use:   "generate [handle]",
		Short: "Generate a newspaper PDF from a Bluesky timeline",
		Args:  cobra.MaximumNArgs(1),
		Example: "" +
			"  " + os.Args[0] + " generate yourname.bsky.social\n" +
			"  " + os.Args[0] + " generate --cache --date 2026-08-24 --no-themes",
		Run: runGenerateCommand,
	}

	generateCommand.Flags().BoolVar(&useCache, "cache", false, "Build from a cached snapshot instead of the network")
	generateCommand.Flags().BoolVar(&noSave, "no-save", false, "Do not persist the snapshot or images")
	generateCommand.Flags().BoolVar(&noThemes, "no-themes", false, "Skip theme classification, single section layout")
	generateCommand.Flags().StringVar(&modelID, "model", "", "OpenRouter model for theme classification")
	generateCommand.Flags().StringVarP(&output, "output", "o", "", "Output PDF path (default bluesky_times_YYYY-MM-DD.pdf)")
	generateCommand.Flags().IntVar(&limit, "limit", configuration.DefaultPostLimit, "Maximum timeline posts to fetch")
	generateCommand.Flags().StringVar(&editionDate, "date", "", "Edition date as YYYY-MM-DD (default today)")
	generateCommand.Flags().BoolVar(&openAfter, "open", false, "Open the finished PDF")
	generateCommand.Flags().BoolVar(&withCloud, "wordcloud", false, "Append a word cloud back page")
	generateCommand.Flags().StringVar(&styleFile, "style", "", "YAML style file overriding layout defaults")
	viper.BindPFlag("model", generateCommand.Flags().Lookup("model"))
	viper.BindPFlag("limit", generateCommand.Flags().Lookup("limit"))

	return generateCommand
}

func runGenerateCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	isTty = term.IsTerminal(int(os.Stdout.Fd()))

	handle := configuration.Handle()
	if len(args) > 0 {
		handle = args[0]
	}
	handle = utils.NormalizeHandle(handle)
	if handle == "" {
		logger.Log.Fatalf("no handle: pass one as an argument or set BLUESKY_HANDLE")
	}

	date := editionDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		logger.Log.Fatalf("bad --date %q, expected YYYY-MM-DD", editionDate)
	}

	outputPath := output
	if outputPath == "" {
		outputPath = fmt.Sprintf("bluesky_times_%s.pdf", date)
	}

	var batch *bluesky.Batch
	var sdb *database.SnapshotDB
	if useCache {
		batch, sdb = loadCachedBatch(handle, date)
	} else {
		batch, sdb = fetchLiveBatch(ctx, handle, date)
	}
	if sdb != nil {
		defer sdb.Close()
	}

	posts := bluesky.Normalize(batch)
	if len(posts) == 0 {
		logger.Log.Fatalf("timeline for %s yielded no printable posts", handle)
	}
	progress("Collected %d posts from @%s", len(posts), handle)

	resolved := images.ResolvePosts(ctx, imageStore(sdb), posts)
	progress("Resolved %d images", resolved)

	result := classifyPosts(ctx, posts)

	policy := edition.Policy{
		Favorites:         configuration.Favorites(),
		Order:             configuration.FavoritesOrder(),
		FavoritesInThemes: configuration.FavoritesInThemes(),
	}
	ed := edition.Assemble(handle, date, time.Now(), posts, result.Themes, result.Assignment, policy)
	progress("Laid out %d posts in %d sections", ed.PostCount(), len(ed.Sections))

	conf := layout.LoadConf(styleFile)
	blocks := layout.BuildBlocks(ed, conf)
	if withCloud {
		withCloudBlocks, err := layout.AppendWordCloud(blocks, posts, conf.WordCloud)
		if err != nil {
			logger.Log.Warnf("skipping word cloud: %v", err)
		} else {
			blocks = withCloudBlocks
		}
	}

	markup, err := layout.RenderHTML(blocks, conf)
	if err != nil {
		logger.Log.Fatalf("rendering markup: %v", err)
	}

	exporter := pdf.Exporter{
		PageSize: conf.PageSize,
		MarginMM: conf.MarginMM,
		Title:    fmt.Sprintf("%s %s", conf.Masthead, date),
	}
	if err := exporter.Export(markup, outputPath); err != nil {
		logger.Log.Fatalf("exporting PDF: %v", err)
	}

	success("Wrote %s", outputPath)
	if openAfter {
		if err := browser.OpenFile(outputPath); err != nil {
			logger.Log.Warnf("opening %s: %v", outputPath, err)
		}
	}
}

// loadCachedBatch replays a stored snapshot. The database stays open so the
// image cache can serve lookups for the rest of the run.
func loadCachedBatch(handle, date string) (*bluesky.Batch, *database.SnapshotDB) {
	sdb, err := configuration.OpenExistingSnapshotDatabase()
	if err != nil {
		logger.Log.Fatalf("loading cache: %v", err)
	}

	payload, err := sdb.LoadSnapshot(handle, date)
	if errors.Is(err, database.ErrSnapshotNotFound) {
		logger.Log.Fatalf("loading cache: no snapshot for %s on %s", handle, date)
	}
	if err != nil {
		logger.Log.Fatalf("loading cache: %v", err)
	}

	batch, err := bluesky.DecodeBatch(payload)
	if err != nil {
		logger.Log.Fatalf("loading cache: %v", err)
	}
	progress("Replaying snapshot of @%s from %s", handle, date)
	return batch, sdb
}

func fetchLiveBatch(ctx context.Context, handle, date string) (*bluesky.Batch, *database.SnapshotDB) {
	appPassword := configuration.AppPassword()
	if appPassword == "" {
		logger.Log.Fatalf("fetching timeline: BLUESKY_APP_PASSWORD is not set")
	}

	client := bluesky.NewClient(bluesky.DefaultHost)
	if err := client.Login(ctx, handle, appPassword); err != nil {
		logger.Log.Fatalf("logging in as %s: %v", handle, err)
	}

	progress("Fetching up to %d timeline posts for @%s", viper.GetInt("limit"), handle)
	batch, err := bluesky.NewFetcher(client, viper.GetInt("limit")).FetchBatch(ctx, handle)
	if err != nil {
		logger.Log.Fatalf("fetching timeline: %v", err)
	}

	if noSave {
		return batch, nil
	}

	sdb, err := configuration.OpenSnapshotDatabase()
	if err != nil {
		logger.Log.Fatalf("opening snapshot database: %v", err)
	}
	payload, err := bluesky.EncodeBatch(batch)
	if err != nil {
		logger.Log.Fatalf("encoding snapshot: %v", err)
	}
	if _, err := sdb.SaveSnapshot(handle, date, len(batch.Feed), payload); err != nil {
		// A broken cache should not cost us the edition
		logger.Log.Warnf("saving snapshot: %v", err)
	}
	return batch, sdb
}

// imageStore picks where resolved images come from and go to: the database
// both ways on normal runs, lookup-only on cache replays, memory when the
// run must leave no trace.
func imageStore(sdb *database.SnapshotDB) images.Store {
	switch {
	case useCache:
		return images.NewDBStore(sdb, true)
	case sdb == nil:
		return images.NewMemoryStore()
	default:
		return images.NewDBStore(sdb, false)
	}
}

func classifyPosts(ctx context.Context, posts []model.Post) themes.Result {
	if noThemes {
		progress("Skipping theme classification")
		return themes.Fallback(posts)
	}

	apiKey := configuration.OpenRouterAPIKey()
	if apiKey == "" {
		logger.Log.Fatalf("classifying posts: OPENROUTER_API_KEY is not set (or pass --no-themes)")
	}
	classifier, err := themes.NewClassifier(ctx, themes.Config{
		BaseURL: configuration.OpenRouterBaseURL,
		APIKey:  apiKey,
		Model:   configuration.Model(),
	})
	if err != nil {
		logger.Log.Fatalf("classifying posts: %v", err)
	}

	progress("Classifying %d posts with %s", len(posts), configuration.Model())
	result := classifier.Classify(ctx, posts)
	if result.Fallback {
		progress("Classification unavailable, printing a single section")
	}
	return result
}

func progress(format string, args ...any) {
	if isTty {
		ansi.Printf(ansi.Cyan, format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

func success(format string, args ...any) {
	if isTty {
		ansi.Printf(ansi.Green, format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
