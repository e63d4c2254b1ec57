// Package config loads the service configuration from a YAML file,
// a .env file and BLOG_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "BLOG_"

const (
	BackendDisk = "disk"
	BackendS3   = "s3"
)

type Config struct {
	Addr             string          `yaml:"addr"`
	DiagAddr         string          `yaml:"diag_addr"`
	ArticleMapPath   string          `yaml:"article_map_path"`
	EditPassword     string          `yaml:"edit_password"`
	EditPasswordFile string          `yaml:"edit_password_file"` // optional, wins over edit_password
	Upload           UploadConfig    `yaml:"upload"`
	CORS             CORSConfig      `yaml:"cors"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type UploadConfig struct {
	Backend       string   `yaml:"backend"` // "disk" or "s3"
	Dir           string   `yaml:"dir"`
	PublicBaseURL string   `yaml:"public_base_url"`
	ServeStatic   bool     `yaml:"serve_static"` // serve Dir under /image/ from this process
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig limits the edit endpoints per client IP. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the settings the service ran with before it was configurable.
func Default() Config {
	return Config{
		Addr:           ":1995",
		DiagAddr:       ":9999",
		ArticleMapPath: "./article-map.json",
		Upload: UploadConfig{
			Backend:       BackendDisk,
			Dir:           "../image",
			PublicBaseURL: "http://zhuangtianyu.com/image/",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://zhuangtianyu.com",
				"http://www.zhuangtianyu.com",
				"https://zhuangtianyu.com",
				"https://www.zhuangtianyu.com",
			},
		},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
	}
}

// Load reads path (optional, may be empty), then .env files, then the
// environment, and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 -- path is the operator supplied config file
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.EditPasswordFile != "" {
		// #nosec G304 -- path comes from the config file
		secret, err := os.ReadFile(cfg.EditPasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read edit password file: %w", err)
		}
		cfg.EditPassword = strings.TrimSpace(string(secret))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"ADDR":               &c.Addr,
		"DIAG_ADDR":          &c.DiagAddr,
		"ARTICLE_MAP":        &c.ArticleMapPath,
		"EDIT_PASSWORD":      &c.EditPassword,
		"EDIT_PASSWORD_FILE": &c.EditPasswordFile,
		"UPLOAD_BACKEND":     &c.Upload.Backend,
		"UPLOAD_DIR":         &c.Upload.Dir,
		"UPLOAD_BASE_URL":    &c.Upload.PublicBaseURL,
		"S3_BUCKET":          &c.Upload.S3.Bucket,
		"S3_PREFIX":          &c.Upload.S3.Prefix,
		"S3_REGION":          &c.Upload.S3.Region,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "CORS_ORIGINS"); ok {
		c.CORS.AllowedOrigins = splitList(v)
	}

	if v, ok := os.LookupEnv(EnvPrefix + "TRUST_PROXY"); ok {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sTRUST_PROXY: %w", EnvPrefix, err)
		}
		c.TrustProxy = trust
	}

	if v, ok := os.LookupEnv(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		c.RateLimit.RPS = rps
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ArticleMapPath == "" {
		return fmt.Errorf("article_map_path cannot be empty")
	}
	if c.EditPassword == "" {
		return fmt.Errorf("edit password is not set (edit_password, edit_password_file or %sEDIT_PASSWORD)", EnvPrefix)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.Upload.PublicBaseURL == "" {
		return fmt.Errorf("upload.public_base_url cannot be empty")
	}

	switch c.Upload.Backend {
	case BackendDisk:
		if c.Upload.Dir == "" {
			return fmt.Errorf("upload.dir cannot be empty for the disk backend")
		}
	case BackendS3:
		if c.Upload.S3.Bucket == "" {
			return fmt.Errorf("upload.s3.bucket cannot be empty for the s3 backend")
		}
		if c.Upload.ServeStatic {
			return fmt.Errorf("upload.serve_static needs the disk backend")
		}
	default:
		return fmt.Errorf("upload.backend must be %q or %q, got %q", BackendDisk, BackendS3, c.Upload.Backend)
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps cannot be negative, got %v", c.RateLimit.RPS)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1 when rps is set, got %d", c.RateLimit.Burst)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
