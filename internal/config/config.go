package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	StoreBackendCSV      = "csv"
	StoreBackendPostgres = "postgres"

	DefaultLeadAPIPath = "/services/apexrest/lead/createlead"
)

// SalesforceConfig carries the password-grant credentials used to obtain CRM tokens.
type SalesforceConfig struct {
	ClientID     string        `envconfig:"CLIENT_ID"`
	ClientSecret string        `envconfig:"CLIENT_SECRET"`
	Username     string        `envconfig:"USERNAME"`
	Password     string        `envconfig:"PASSWORD"`
	TokenURL     string        `envconfig:"TOKEN_URL"`
	LeadAPIPath  string        `envconfig:"LEAD_API_PATH" default:"/services/apexrest/lead/createlead"`
	HTTPTimeout  time.Duration `envconfig:"SF_HTTP_TIMEOUT" default:"15s"`
	CacheToken   bool          `envconfig:"SF_CACHE_TOKEN" default:"true"`
	TokenTTL     time.Duration `envconfig:"SF_TOKEN_TTL" default:"1h"`
}

type StoreConfig struct {
	Backend         string `envconfig:"STORE_BACKEND" default:"csv"`
	LeadsLogPath    string `envconfig:"LEADS_LOG_PATH" default:"leads.csv"`
	FailedLeadsPath string `envconfig:"FAILED_LEADS_PATH" default:"failed_leads.csv"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
}

type RabbitMQConfig struct {
	URL string `envconfig:"AMQP_URL"`
}

type MailConfig struct {
	Host     string `envconfig:"MAIL_HOST"`
	Port     int    `envconfig:"MAIL_PORT" default:"587"`
	User     string `envconfig:"MAIL_USER"`
	Password string `envconfig:"MAIL_PASS"`
	From     string `envconfig:"MAIL_FROM" default:"no-reply@leadrelay.local"`
	AlertTo  string `envconfig:"ALERT_EMAIL_TO"`
}

type Config struct {
	Port            string        `envconfig:"PORT" default:"5000"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text"`
	RateLimit       int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
	RetryInterval   time.Duration `envconfig:"RETRY_INTERVAL" default:"0s"`
	RetryRemove     bool          `envconfig:"RETRY_REMOVE_SUCCESSFUL" default:"false"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	Salesforce      SalesforceConfig
	Store           StoreConfig
	RabbitMQ        RabbitMQConfig
	Mail            MailConfig
	LeadDefaultsEnv string `envconfig:"LEAD_DEFAULTS"`
}

// Load reads envFile (when present) into the environment and then fills Config from it.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Salesforce.TokenURL = strings.TrimSpace(c.Salesforce.TokenURL)
	if c.Salesforce.LeadAPIPath == "" {
		c.Salesforce.LeadAPIPath = DefaultLeadAPIPath
	}
	if !strings.HasPrefix(c.Salesforce.LeadAPIPath, "/") {
		c.Salesforce.LeadAPIPath = "/" + c.Salesforce.LeadAPIPath
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendCSV
	}
}

// Validate checks what is needed to talk to the CRM and to open the stores.
func (c *Config) Validate() error {
	if c.Salesforce.TokenURL == "" {
		return errors.New("TOKEN_URL is required")
	}
	if c.Salesforce.ClientID == "" || c.Salesforce.ClientSecret == "" {
		return errors.New("CLIENT_ID and CLIENT_SECRET are required")
	}
	switch c.Store.Backend {
	case StoreBackendCSV:
		if c.Store.LeadsLogPath == "" || c.Store.FailedLeadsPath == "" {
			return errors.New("LEADS_LOG_PATH and FAILED_LEADS_PATH are required for the csv backend")
		}
	case StoreBackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return errors.New("STORE_BACKEND must be csv or postgres")
	}
	return nil
}

// LeadDefaults parses LEAD_DEFAULTS ("Field=value;Field=value") into overrides for the
// dealer and product constants.
func (c *Config) LeadDefaults() map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(c.LeadDefaultsEnv, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// AlertRecipients splits ALERT_EMAIL_TO on commas.
func (c *Config) AlertRecipients() []string {
	var out []string
	for _, addr := range strings.Split(c.Mail.AlertTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ConfigureLogger applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func (c *Config) ConfigureLogger() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("invalid LOG_LEVEL %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
