package gtfsnext

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultStalenessDays is how old a dataset may get before an update is
// recommended.
const DefaultStalenessDays = 60

// Config describes one operating area's feed and where its artifacts live.
type Config struct {
	// OperatingArea is the geographic partition of the schedule dataset,
	// e.g. "skane". One archive and one store per area.
	OperatingArea string `yaml:"operating_area" validate:"required"`

	// DataURL is a template; every "{operating_area}" is expanded.
	DataURL string `yaml:"data_url" validate:"required"`

	APIKey  string `yaml:"api_key" validate:"required"`
	DataDir string `yaml:"data_dir" validate:"required"`

	StalenessDays int `yaml:"staleness_days" validate:"gte=0"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}

	if cfg.StalenessDays == 0 {
		cfg.StalenessDays = DefaultStalenessDays
	}
	return &cfg, nil
}

// FeedURL expands the URL template and appends the API key as a query
// parameter, respecting any query string already on the template.
func (c *Config) FeedURL() string {
	url := strings.ReplaceAll(c.DataURL, "{operating_area}", c.OperatingArea)
	if strings.Contains(url, "?") {
		return url + "&key=" + c.APIKey
	}
	return url + "?key=" + c.APIKey
}
