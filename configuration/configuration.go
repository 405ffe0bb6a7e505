package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BenHamm/bluesky-times/database"
	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultModel is the OpenRouter model used for theme classification
	// unless overridden by --model or BLUESKY_TIMES_MODEL.
	DefaultModel = "anthropic/claude-sonnet-4.5"

	// DefaultPostLimit caps how many timeline posts one edition draws from.
	DefaultPostLimit = 250

	// OpenRouterBaseURL is the chat-completions endpoint the classifier
	// talks to.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// DefaultFavorites are the prioritized voices used when no favorites list is
// configured. They get the dedicated front section of every edition.
var DefaultFavorites = []string{
	"theophite.bsky.social",
	"jbouie.bsky.social",
	"proptermalone.bsky.social",
	"samthielman.com",
	"dieworkwear.bsky.social",
	"reckless.bsky.social",
}

// LoadEnvironment layers configuration sources: a .env file when present,
// then process environment variables, with command-line flags (bound by the
// cli package) winning over both.
func LoadEnvironment() {
	if exists, _ := utils.PathExists(".env"); exists {
		if err := godotenv.Load(); err != nil {
			logger.Log.WithError(err).Warn("could not load .env file")
		}
	}

	viper.BindEnv("handle", "BLUESKY_HANDLE")
	viper.BindEnv("app-password", "BLUESKY_APP_PASSWORD")
	viper.BindEnv("openrouter-api-key", "OPENROUTER_API_KEY")
	viper.BindEnv("model", "BLUESKY_TIMES_MODEL")
	viper.BindEnv("database", "BLUESKY_TIMES_DB")
	viper.BindEnv("favorites", "BLUESKY_TIMES_FAVORITES")
	viper.BindEnv("favorites-order", "BLUESKY_TIMES_FAVORITES_ORDER")
	viper.BindEnv("favorites-in-themes", "BLUESKY_TIMES_FAVORITES_IN_THEMES")

	viper.SetDefault("model", DefaultModel)
	viper.SetDefault("limit", DefaultPostLimit)
	viper.SetDefault("favorites-order", "recent")
	viper.SetDefault("favorites-in-themes", true)
}

func Handle() string {
	return utils.NormalizeHandle(viper.GetString("handle"))
}

func AppPassword() string {
	return viper.GetString("app-password")
}

func OpenRouterAPIKey() string {
	return viper.GetString("openrouter-api-key")
}

func Model() string {
	return viper.GetString("model")
}

// Favorites returns the configured favorite handles, normalized. The value
// may arrive as a list (config file) or as one comma or space separated
// string (environment variable); both forms are accepted.
func Favorites() []string {
	raw := viper.GetStringSlice("favorites")
	if len(raw) == 0 {
		raw = DefaultFavorites
	}

	var favorites []string
	for _, entry := range raw {
		for _, handle := range strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			if normalized := utils.NormalizeHandle(handle); normalized != "" {
				favorites = append(favorites, normalized)
			}
		}
	}
	return favorites
}

// FavoritesOrder selects how the favorites section is sorted: "recent"
// (the default) or "engagement".
func FavoritesOrder() string {
	return strings.ToLower(strings.TrimSpace(viper.GetString("favorites-order")))
}

// FavoritesInThemes reports whether favorite posts keep their slot in the
// themed sections besides the dedicated front section. On by default.
func FavoritesInThemes() bool {
	return viper.GetBool("favorites-in-themes")
}

// DatabasePath resolves the snapshot database location: the --database flag
// or BLUESKY_TIMES_DB when set, otherwise ~/.bluesky-times/snapshots.db.
func DatabasePath() string {
	if path := viper.GetString("database"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "snapshots.db"
	}
	return filepath.Join(home, ".bluesky-times", "snapshots.db")
}

// OpenSnapshotDatabase opens the snapshot database, creating it (and its
// parent directory) on first use. Live generation runs use this.
func OpenSnapshotDatabase() (*database.SnapshotDB, error) {
	dbPath := DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}
	return database.OpenSnapshotDB(dbPath)
}

// OpenExistingSnapshotDatabase opens the snapshot database only if it
// already exists. Cache replays and snapshot listing use this, since a
// missing database means there is nothing to replay.
func OpenExistingSnapshotDatabase() (sdb *database.SnapshotDB, err error) {
	dbPath := DatabasePath()

	var exists bool
	if exists, err = utils.PathExists(dbPath); err == nil {
		if exists {
			sdb, err = database.OpenSnapshotDB(dbPath)
		} else {
			err = fmt.Errorf("Database %q does not exist", dbPath)
		}
	}
	return
}
