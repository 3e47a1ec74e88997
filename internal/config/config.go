package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/auction-docs/internal/model"
)

// ErrNoInstitutions is returned by Validate when no institution is configured.
var ErrNoInstitutions = eris.New("config: no institutions configured")

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig         `yaml:"store" mapstructure:"store"`
	Server       ServerConfig        `yaml:"server" mapstructure:"server"`
	Log          LogConfig           `yaml:"log" mapstructure:"log"`
	Fetch        FetchConfig         `yaml:"fetch" mapstructure:"fetch"`
	Pipeline     PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Institutions []model.Institution `yaml:"institutions" mapstructure:"institutions"`
}

// StoreConfig configures the run-history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	MaxRedirects     int    `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxBodyMB        int    `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	MinIntervalMs    int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the per-request timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MinInterval returns the minimum spacing between requests.
func (c FetchConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// PipelineConfig configures the scrape run.
type PipelineConfig struct {
	Keyword            string   `yaml:"keyword" mapstructure:"keyword"`
	DocumentLabel      string   `yaml:"document_label" mapstructure:"document_label"`
	Ext                string   `yaml:"ext" mapstructure:"ext"`
	OutputDir          string   `yaml:"output_dir" mapstructure:"output_dir"`
	Source             string   `yaml:"source" mapstructure:"source"`
	LotURLTemplate     string   `yaml:"lot_url_template" mapstructure:"lot_url_template"`
	ProbePaths         []string `yaml:"probe_paths" mapstructure:"probe_paths"`
	SkipPaths          []string `yaml:"skip_paths" mapstructure:"skip_paths"`
	LotPauseMs         int      `yaml:"lot_pause_ms" mapstructure:"lot_pause_ms"`
	EventPauseMs       int      `yaml:"event_pause_ms" mapstructure:"event_pause_ms"`
	InstitutionPauseMs int      `yaml:"institution_pause_ms" mapstructure:"institution_pause_ms"`
	LotWorkers         int      `yaml:"lot_workers" mapstructure:"lot_workers"`
	RunTimeoutMins     int      `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
	InstitutionsFile   string   `yaml:"institutions_file" mapstructure:"institutions_file"`
}

// RunTimeout returns the run-level deadline, or 0 for none.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMins) * time.Minute
}

// DefaultInstitutions are the banks whose extrajudicial auctions are
// harvested from the leilaovip agenda.
func DefaultInstitutions() []model.Institution {
	return []model.Institution{
		{Name: "bradesco", IndexURL: "https://www.leilaovip.com.br/agenda?Filtro.ComitenteId=8936579c-897d-425c-a252-b18c011710bf"},
		{Name: "banco_pan", IndexURL: "https://www.leilaovip.com.br/agenda?Filtro.ComitenteId=ddbba3da-1e3b-46f6-8f6c-b18e012f43d7"},
		{Name: "bv", IndexURL: "https://www.leilaovip.com.br/agenda?Filtro.ComitenteId=729ccab8-f1ba-4ce6-85ce-b18c0114503a"},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "auction-docs.db")
	v.SetDefault("server.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.max_body_mb", 50)
	v.SetDefault("fetch.min_interval_ms", 500)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_reset_secs", 60)
	v.SetDefault("pipeline.keyword", "Extrajudicial")
	v.SetDefault("pipeline.document_label", "matrícula")
	v.SetDefault("pipeline.ext", "pdf")
	v.SetDefault("pipeline.output_dir", "pdfs")
	v.SetDefault("pipeline.source", "leilao_vip")
	v.SetDefault("pipeline.lot_url_template", "/evento/anuncio/{slug}")
	v.SetDefault("pipeline.probe_paths", []string{"/agenda", "/leiloes", "/eventos"})
	v.SetDefault("pipeline.skip_paths", []string{"/login*", "/cadastro*", "/conta/*", "/blog/*", "/noticias/*", "/institucional/*"})
	v.SetDefault("pipeline.lot_pause_ms", 1000)
	v.SetDefault("pipeline.event_pause_ms", 2000)
	v.SetDefault("pipeline.institution_pause_ms", 3000)
	v.SetDefault("pipeline.lot_workers", 1)
	v.SetDefault("pipeline.run_timeout_mins", 60)
	v.SetDefault("pipeline.institutions_file", "")
	v.SetDefault("fetch.user_agent", "")

	defaults := make([]map[string]any, 0, 3)
	for _, inst := range DefaultInstitutions() {
		defaults = append(defaults, map[string]any{"name": inst.Name, "index_url": inst.IndexURL})
	}
	v.SetDefault("institutions", defaults)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Pipeline.InstitutionsFile != "" {
		insts, err := LoadInstitutions(cfg.Pipeline.InstitutionsFile)
		if err != nil {
			return nil, err
		}
		cfg.Institutions = insts
	}

	return &cfg, nil
}

type institutionsFile struct {
	Institutions []model.Institution `yaml:"institutions"`
}

// LoadInstitutions reads an institutions list from a YAML file of the form
// `institutions: [{name, index_url}]`.
func LoadInstitutions(path string) ([]model.Institution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read institutions file %s", path)
	}

	var f institutionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse institutions file %s", path)
	}

	for i, inst := range f.Institutions {
		if strings.TrimSpace(inst.Name) == "" || strings.TrimSpace(inst.IndexURL) == "" {
			return nil, eris.Errorf("config: institution %d in %s needs name and index_url", i, path)
		}
	}
	return f.Institutions, nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	if len(c.Institutions) == 0 {
		return ErrNoInstitutions
	}
	for _, inst := range c.Institutions {
		if inst.Name == "" || inst.IndexURL == "" {
			return eris.Errorf("config: institution %q needs name and index_url", inst.Name)
		}
	}
	return nil
}

// Institution returns the configured institution named name.
func (c *Config) Institution(name string) (model.Institution, bool) {
	for _, inst := range c.Institutions {
		if strings.EqualFold(inst.Name, name) {
			return inst, true
		}
	}
	return model.Institution{}, false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
