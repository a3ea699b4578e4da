// Package config loads service configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over .env values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Backend names accepted by AUTH_BACKEND, STORE_BACKEND and BLOB_BACKEND.
const (
	BackendFirebase = "firebase"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the fully resolved service configuration.
type Config struct {
	Port string

	ProjectID                    string
	GoogleApplicationCredentials string
	APIKey                       string // Web API key for the Identity Toolkit REST API
	StorageBucket                string
	AuthEmulatorHost             string

	AuthBackend  string
	StoreBackend string
	BlobBackend  string

	S3 S3Config

	GoogleOAuth GoogleOAuthConfig

	SessionIdleTimeout time.Duration

	LogLevel zapcore.Level
}

// S3Config configures the S3-compatible blob backend.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PresignExpiry time.Duration
}

// GoogleOAuthConfig enables server-side authorization code exchange for federated sign-in.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether code exchange is configured.
func (g GoogleOAuthConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Tests pass a map-backed getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:                         valueOr(getenv("PORT"), "8080"),
		ProjectID:                    firstNonEmpty(getenv("FIREBASE_PROJECT_ID"), getenv("GOOGLE_CLOUD_PROJECT")),
		GoogleApplicationCredentials: getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		APIKey:                       getenv("FIREBASE_API_KEY"),
		StorageBucket:                getenv("FIREBASE_STORAGE_BUCKET"),
		AuthEmulatorHost:             getenv("FIREBASE_AUTH_EMULATOR_HOST"),
		AuthBackend:                  strings.ToLower(valueOr(getenv("AUTH_BACKEND"), BackendFirebase)),
		StoreBackend:                 strings.ToLower(valueOr(getenv("STORE_BACKEND"), BackendFirebase)),
		BlobBackend:                  strings.ToLower(valueOr(getenv("BLOB_BACKEND"), BackendFirebase)),
		S3: S3Config{
			Bucket:    getenv("S3_BUCKET"),
			Region:    valueOr(getenv("S3_REGION"), "us-east-1"),
			Endpoint:  getenv("S3_ENDPOINT"),
			AccessKey: getenv("S3_ACCESS_KEY"),
			SecretKey: getenv("S3_SECRET_KEY"),
		},
		GoogleOAuth: GoogleOAuthConfig{
			ClientID:     getenv("GOOGLE_OAUTH_CLIENT_ID"),
			ClientSecret: getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
			RedirectURL:  getenv("GOOGLE_OAUTH_REDIRECT_URL"),
		},
	}

	var err error
	if cfg.S3.PresignExpiry, err = durationOr(getenv("S3_PRESIGN_EXPIRY"), 7*24*time.Hour); err != nil {
		return Config{}, fmt.Errorf("%w: S3_PRESIGN_EXPIRY: %v", ErrInvalid, err)
	}
	if cfg.SessionIdleTimeout, err = durationOr(getenv("SESSION_IDLE_TIMEOUT"), 30*time.Minute); err != nil {
		return Config{}, fmt.Errorf("%w: SESSION_IDLE_TIMEOUT: %v", ErrInvalid, err)
	}
	if cfg.LogLevel, err = zapcore.ParseLevel(valueOr(getenv("LOG_LEVEL"), "info")); err != nil {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalid, err)
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("%w: PORT %q is not a number", ErrInvalid, cfg.Port)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.AuthBackend {
	case BackendFirebase:
		if c.APIKey == "" && c.AuthEmulatorHost == "" {
			return fmt.Errorf("%w: FIREBASE_API_KEY is required unless FIREBASE_AUTH_EMULATOR_HOST is set", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown AUTH_BACKEND %q", ErrInvalid, c.AuthBackend)
	}
	switch c.StoreBackend {
	case BackendFirebase, BackendMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalid, c.StoreBackend)
	}
	switch c.BlobBackend {
	case BackendFirebase:
		if c.StorageBucket == "" {
			return fmt.Errorf("%w: FIREBASE_STORAGE_BUCKET is required for the firebase blob backend", ErrInvalid)
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET is required for the s3 blob backend", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown BLOB_BACKEND %q", ErrInvalid, c.BlobBackend)
	}
	return nil
}

// NeedsFirebase reports whether any backend requires the Firebase Admin SDK.
// The firebase auth backend needs it to verify bearer ID tokens.
func (c Config) NeedsFirebase() bool {
	return c.AuthBackend == BackendFirebase || c.StoreBackend == BackendFirebase || c.BlobBackend == BackendFirebase
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
