package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Remediate  RemediateConfig  `yaml:"remediate" mapstructure:"remediate"`
	Validation ValidateConfig   `yaml:"validate" mapstructure:"validate"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures how datasets are fetched and parsed.
type SourceConfig struct {
	Format          string   `yaml:"format" mapstructure:"format"`
	Delimiter       string   `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding        string   `yaml:"encoding" mapstructure:"encoding"`
	NAValues        []string `yaml:"na_values" mapstructure:"na_values"`
	Member          string   `yaml:"member" mapstructure:"member"`
	Sheet           string   `yaml:"sheet" mapstructure:"sheet"`
	HTTPTimeoutSecs int      `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
	FTPTimeoutSecs  int      `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	RateLimit       float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent       string   `yaml:"user_agent" mapstructure:"user_agent"`
}

// AuditConfig configures cleaning and scoring.
type AuditConfig struct {
	Sentinels        []string `yaml:"sentinels" mapstructure:"sentinels"`
	BinnedColumns    []string `yaml:"binned_columns" mapstructure:"binned_columns"`
	IDsMappingPath   string   `yaml:"ids_mapping_path" mapstructure:"ids_mapping_path"`
	IDsMappingMember string   `yaml:"ids_mapping_member" mapstructure:"ids_mapping_member"` // ZIP entry holding the mapping
}

// RemediateConfig configures imputation and derived columns.
type RemediateConfig struct {
	IDColumns    []string `yaml:"id_columns" mapstructure:"id_columns"`
	CodeColumns  []string `yaml:"code_columns" mapstructure:"code_columns"`
	TargetSource string   `yaml:"target_source" mapstructure:"target_source"`
	MaxIter      int      `yaml:"max_iter" mapstructure:"max_iter"`
	Tol          float64  `yaml:"tol" mapstructure:"tol"`
	Order        string   `yaml:"order" mapstructure:"order"`
	Seed         uint64   `yaml:"seed" mapstructure:"seed"`
}

// ValidateConfig configures distribution validation.
type ValidateConfig struct {
	Columns      []string `yaml:"columns" mapstructure:"columns"`
	OutputDir    string   `yaml:"output_dir" mapstructure:"output_dir"`
	Concurrency  int      `yaml:"concurrency" mapstructure:"concurrency"`
	WidthInches  float64  `yaml:"width_inches" mapstructure:"width_inches"`
	HeightInches float64  `yaml:"height_inches" mapstructure:"height_inches"`
}

// ExportConfig configures where a pipeline run writes its outputs. Empty
// paths disable the corresponding output.
type ExportConfig struct {
	CSVPath       string `yaml:"csv_path" mapstructure:"csv_path"`
	ParquetPath   string `yaml:"parquet_path" mapstructure:"parquet_path"`
	ReportPath    string `yaml:"report_path" mapstructure:"report_path"`
	PostgresTable string `yaml:"postgres_table" mapstructure:"postgres_table"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	Replace       bool   `yaml:"replace" mapstructure:"replace"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// MonitoringConfig configures DQI thresholds and alert delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinDQI               float64 `yaml:"min_dqi" mapstructure:"min_dqi"`
	MinComponent         float64 `yaml:"min_component" mapstructure:"min_component"`
	MaxDuplicateRatio    float64 `yaml:"max_duplicate_ratio" mapstructure:"max_duplicate_ratio"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("READMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.format", "")
	v.SetDefault("source.delimiter", ",")
	v.SetDefault("source.encoding", "")
	v.SetDefault("source.member", "")
	v.SetDefault("source.sheet", "")
	v.SetDefault("source.na_values", []string{""})
	v.SetDefault("source.http_timeout_secs", 60)
	v.SetDefault("source.ftp_timeout_secs", 30)
	v.SetDefault("source.rate_limit", 5.0)
	v.SetDefault("source.user_agent", "readmit-dqi/1.0")
	v.SetDefault("audit.sentinels", []string{"?", "Unknown", "unknown", "UNKNOWN", "Not Available", "NULL", "Not Mapped", "Unknown/Invalid"})
	v.SetDefault("audit.binned_columns", []string{"age", "weight"})
	v.SetDefault("audit.ids_mapping_path", "")
	v.SetDefault("audit.ids_mapping_member", "IDs_mapping.csv")
	v.SetDefault("remediate.id_columns", []string{"encounter_id", "patient_nbr"})
	v.SetDefault("remediate.code_columns", []string{"diag_1", "diag_2", "diag_3"})
	v.SetDefault("remediate.target_source", "readmitted")
	v.SetDefault("remediate.max_iter", 10)
	v.SetDefault("remediate.tol", 1e-3)
	v.SetDefault("remediate.order", "ascending")
	v.SetDefault("remediate.seed", 0)
	v.SetDefault("validate.columns", []string{"num_lab_procedures", "num_medications", "time_in_hospital"})
	v.SetDefault("validate.output_dir", "validation")
	v.SetDefault("validate.concurrency", 3)
	v.SetDefault("validate.width_inches", 10.0)
	v.SetDefault("validate.height_inches", 6.0)
	v.SetDefault("export.csv_path", "")
	v.SetDefault("export.parquet_path", "")
	v.SetDefault("export.report_path", "")
	v.SetDefault("export.postgres_table", "")
	v.SetDefault("export.database_url", "")
	v.SetDefault("export.replace", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "readmit.db")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.min_dqi", 0.8)
	v.SetDefault("monitoring.min_component", 0.6)
	v.SetDefault("monitoring.max_duplicate_ratio", 0.05)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. Modes are audit,
// remediate, validate, run, serve and monitor.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "audit", "remediate", "validate", "run", "serve", "monitor":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "run" || mode == "serve" || mode == "monitor" {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	}

	if mode != "audit" {
		if c.Remediate.MaxIter < 1 {
			errs = append(errs, "remediate.max_iter must be >= 1")
		}
		if c.Remediate.Tol <= 0 {
			errs = append(errs, "remediate.tol must be > 0")
		}
		switch c.Remediate.Order {
		case "", "ascending", "random":
		default:
			errs = append(errs, "remediate.order must be ascending or random")
		}
	}
	if mode == "validate" || mode == "run" || mode == "serve" {
		if c.Validation.Concurrency < 1 || c.Validation.Concurrency > 32 {
			errs = append(errs, "validate.concurrency must be between 1 and 32")
		}
	}
	if mode == "run" || mode == "serve" {
		if c.Export.PostgresTable != "" && c.Export.DatabaseURL == "" && c.Store.DatabaseURL == "" {
			errs = append(errs, "export.database_url is required when export.postgres_table is set")
		}
	}

	for name, v := range map[string]float64{
		"monitoring.min_dqi":             c.Monitoring.MinDQI,
		"monitoring.min_component":       c.Monitoring.MinComponent,
		"monitoring.max_duplicate_ratio": c.Monitoring.MaxDuplicateRatio,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, name+" must be between 0 and 1")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ExportDatabaseURL returns the Postgres URL used for COPY exports,
// falling back to the store URL.
func (c *Config) ExportDatabaseURL() string {
	if c.Export.DatabaseURL != "" {
		return c.Export.DatabaseURL
	}
	return c.Store.DatabaseURL
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
