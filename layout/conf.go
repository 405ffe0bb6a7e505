package layout

import (
	"image/color"
	"os"

	"github.com/BenHamm/bluesky-times/logger"
	"gopkg.in/yaml.v2"
)

// Conf holds the print-layout parameters. Every field has a working default
// and can be overridden from a YAML style file.
type Conf struct {
	Masthead string `yaml:"masthead"`
	Tagline  string `yaml:"tagline"`

	PageSize string `yaml:"page_size"`
	MarginMM uint   `yaml:"margin_mm"`
	Columns  int    `yaml:"columns"`

	// Image caps in CSS pixels. Rendered images always carry explicit
	// scaled dimensions so native-resolution photos cannot blow out a
	// column.
	MaxImageWidth    int `yaml:"max_image_width"`
	MaxImageHeight   int `yaml:"max_image_height"`
	MultiImageHeight int `yaml:"multi_image_height"`

	WordCloud CloudConf `yaml:"wordcloud"`
}

// CloudConf styles the optional word-cloud back page.
type CloudConf struct {
	FontMaxSize     int    `yaml:"font_max_size"`
	FontMinSize     int    `yaml:"font_min_size"`
	RandomPlacement bool   `yaml:"random_placement"`
	FontFile        string `yaml:"font_file"`
	Colors          []color.RGBA
	BackgroundColor color.RGBA `yaml:"background_color"`
	Width           int
	Height          int
	MaxWords        int `yaml:"max_words"`
}

var DefaultCloudColors = []color.RGBA{
	{0x1b, 0x1b, 0x1b, 0xff},
	{0x48, 0x48, 0x4B, 0xff},
	{0x59, 0x3a, 0xee, 0xff},
	{0x65, 0xCD, 0xFA, 0xff},
	{0x70, 0xD6, 0xBF, 0xff},
}

var DefaultConf = Conf{
	Masthead: "The Bluesky Times",
	Tagline:  "Your Daily Social Digest",

	PageSize: "Letter",
	MarginMM: 10,
	Columns:  2,

	MaxImageWidth:    340,
	MaxImageHeight:   384,
	MultiImageHeight: 288,

	WordCloud: CloudConf{
		FontMaxSize:     200,
		FontMinSize:     12,
		RandomPlacement: false,
		FontFile:        "./fonts/roboto/Roboto-Regular.ttf",
		Colors:          DefaultCloudColors,
		BackgroundColor: color.RGBA{255, 255, 255, 255},
		Width:           1600,
		Height:          1000,
		MaxWords:        120,
	},
}

// LoadConf reads a style file over the defaults. A missing file is not an
// error; a present but undecodable file logs and falls back to defaults.
func LoadConf(path string) Conf {
	conf := DefaultConf
	if path == "" {
		return conf
	}
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Log.Debugf("no style file at %s, using defaults", path)
		return conf
	}
	if err := yaml.Unmarshal(content, &conf); err != nil {
		logger.Log.Warnf("failed to decode style file %s, using defaults: %v", path, err)
		return DefaultConf
	}
	return conf
}
