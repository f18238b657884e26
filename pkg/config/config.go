// Package config builds the gateway configuration from the process environment.
//
// The configuration is read once at startup and handed to each component at
// construction time; handlers never read the environment themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment keys.
const (
	EnvAirtableAPIKey     = "AIRTABLE_API_KEY"
	EnvAirtableBaseID     = "AIRTABLE_BASE_ID"
	EnvAirtableAPIURL     = "AIRTABLE_API_URL"
	EnvAirtableTablesFile = "AIRTABLE_TABLES_FILE"
	EnvAirtableMaxPages   = "AIRTABLE_MAX_PAGES"
	EnvAirtableTimeout    = "AIRTABLE_TIMEOUT"

	EnvCloudinaryCloudName    = "CLOUDINARY_CLOUD_NAME"
	EnvCloudinaryUploadPreset = "CLOUDINARY_UPLOAD_PRESET"
	EnvCloudinaryFolder       = "CLOUDINARY_FOLDER"
	EnvCloudinaryAPIURL       = "CLOUDINARY_API_URL"

	EnvIPLookupURL      = "IPLOOKUP_URL"
	EnvIPLookupCacheTTL = "IPLOOKUP_CACHE_TTL"

	EnvRedisURL  = "REDIS_URL"
	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogPretty = "LOG_PRETTY"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAirtableAPIURL   = "https://api.airtable.com/v0"
	DefaultMaxPages         = 1000
	DefaultAirtableTimeout  = 30 * time.Second
	DefaultCloudName        = "hr-portal"
	DefaultUploadPreset     = "medical_receipts_unsigned"
	DefaultUploadFolder     = "medical-receipts"
	DefaultCloudinaryAPIURL = "https://api.cloudinary.com/v1_1"
	DefaultIPLookupURL      = "https://ipapi.co"
	DefaultIPLookupCacheTTL = 6 * time.Hour
	DefaultPort             = "8080"
	DefaultLogLevel         = "info"
)

// ErrMissingCredentials is matched by MissingCredentialsError.
var ErrMissingCredentials = errors.New("missing backing-source credentials")

// MissingCredentialsError names every mandatory credential that is absent.
type MissingCredentialsError struct {
	Missing []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("server configuration error: missing %s", strings.Join(e.Missing, ", "))
}

func (e *MissingCredentialsError) Is(target error) bool {
	return target == ErrMissingCredentials
}

// Config is the complete gateway configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool

	// RedisURL enables the geolocation cache when non-empty.
	RedisURL string

	Airtable   AirtableConfig
	Cloudinary CloudinaryConfig
	IPLookup   IPLookupConfig
}

// AirtableConfig configures the backing data source.
type AirtableConfig struct {
	APIKey string
	BaseID string
	APIURL string

	// TablesFile optionally points at a YAML file overriding resource table names.
	TablesFile string

	// MaxPages caps a single aggregation.
	MaxPages int

	Timeout time.Duration
}

// Validate reports a *MissingCredentialsError when the API key or base id is empty.
func (c AirtableConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, EnvAirtableAPIKey)
	}
	if strings.TrimSpace(c.BaseID) == "" {
		missing = append(missing, EnvAirtableBaseID)
	}
	if len(missing) > 0 {
		return &MissingCredentialsError{Missing: missing}
	}
	return nil
}

// CloudinaryConfig configures the receipt upload provider. All fields have fallbacks.
type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	Folder       string
	APIURL       string
}

// IPLookupConfig configures the geolocation enrichment route.
type IPLookupConfig struct {
	URL      string
	CacheTTL time.Duration
}

// FromEnv reads the configuration from the process environment.
// Malformed numeric or duration values fall back to their defaults.
func FromEnv() Config {
	return Config{
		Port:      getEnv(EnvPort, DefaultPort),
		LogLevel:  getEnv(EnvLogLevel, DefaultLogLevel),
		LogPretty: getBool(EnvLogPretty, false),
		RedisURL:  getEnv(EnvRedisURL, ""),
		Airtable: AirtableConfig{
			APIKey:     os.Getenv(EnvAirtableAPIKey),
			BaseID:     os.Getenv(EnvAirtableBaseID),
			APIURL:     strings.TrimRight(getEnv(EnvAirtableAPIURL, DefaultAirtableAPIURL), "/"),
			TablesFile: getEnv(EnvAirtableTablesFile, ""),
			MaxPages:   getInt(EnvAirtableMaxPages, DefaultMaxPages),
			Timeout:    getDuration(EnvAirtableTimeout, DefaultAirtableTimeout),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:    getEnv(EnvCloudinaryCloudName, DefaultCloudName),
			UploadPreset: getEnv(EnvCloudinaryUploadPreset, DefaultUploadPreset),
			Folder:       getEnv(EnvCloudinaryFolder, DefaultUploadFolder),
			APIURL:       strings.TrimRight(getEnv(EnvCloudinaryAPIURL, DefaultCloudinaryAPIURL), "/"),
		},
		IPLookup: IPLookupConfig{
			URL:      strings.TrimRight(getEnv(EnvIPLookupURL, DefaultIPLookupURL), "/"),
			CacheTTL: getDuration(EnvIPLookupCacheTTL, DefaultIPLookupCacheTTL),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}
