package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	JWTTTL          time.Duration
	WebOrigin       string
	LogLevel        string
	LogPretty       bool
	RateAPIURL      string
	RateAPIKey      string
	AWSRegion       string
	AWSAccessKey    string
	AWSSecretKey    string
	ImageBucket     string
	BrokerAPIURL    string
	BrokerWSURL     string
	BrokerClientID  string
	BrokerSecret    string
	BrokerReturnURI string
}

// Load reads configuration from the environment, after layering in a
// local .env file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		c.JWTTTL = 24 * time.Hour
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, errors.New("invalid JWT_TTL")
		}
		c.JWTTTL = d
	}
	c.WebOrigin = os.Getenv("WEB_ORIGIN")
	if c.WebOrigin == "" {
		c.WebOrigin = "*"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogPretty = os.Getenv("LOG_PRETTY") == "true"
	c.RateAPIURL = os.Getenv("CURRENCY_API_URL")
	if c.RateAPIURL == "" {
		missing = append(missing, "CURRENCY_API_URL")
	}
	c.RateAPIKey = os.Getenv("CURRENCY_API_KEY")
	if c.RateAPIKey == "" {
		missing = append(missing, "CURRENCY_API_KEY")
	}
	c.AWSRegion = os.Getenv("AWS_REGION")
	c.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY")
	c.AWSSecretKey = os.Getenv("AWS_SECRET_KEY")
	c.ImageBucket = os.Getenv("IMAGE_BUCKET")
	c.BrokerAPIURL = os.Getenv("TRADOVATE_API_URL")
	c.BrokerWSURL = os.Getenv("TRADOVATE_WEBSOCKET_URL")
	c.BrokerClientID = os.Getenv("TRADOVATE_CLIENT_ID")
	c.BrokerSecret = os.Getenv("TRADOVATE_SECRET")
	c.BrokerReturnURI = os.Getenv("TRADOVATE_RETURN_URI")
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

// FeedEnabled reports whether the live broker feed is configured.
func (c Config) FeedEnabled() bool {
	return c.BrokerAPIURL != "" && c.BrokerWSURL != ""
}

// CaptureEnabled reports whether image capture is configured.
func (c Config) CaptureEnabled() bool {
	return c.AWSRegion != "" && c.ImageBucket != ""
}
