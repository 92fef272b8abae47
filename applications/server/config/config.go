package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	BackendGCS    = "gcs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

const (
	defaultHTTPAddr     = "0.0.0.0:8080"
	defaultPath         = "/"
	defaultMaxBodyBytes = 32 << 20 // 32 MB, the Cloud Functions request limit
)

// Environment variables read once at process start. They take precedence over
// values from the config file.
const (
	EnvBucket         = "BUCKET"
	EnvAPIKey         = "API_KEY"
	EnvStorageBackend = "STORAGE_BACKEND"
	EnvHTTPAddr       = "HTTP_ADDR"
)

type Server struct {
	API     Api     `yaml:"api"`
	Storage Storage `yaml:"storage"`
}

type Api struct {
	HTTPAddr     string `yaml:"http_addr"`
	Path         string `yaml:"path"`
	Key          string `yaml:"key"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type Storage struct {
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
	// FreeSpaceBytes bounds the memory backend.
	FreeSpaceBytes int64 `yaml:"free_space_bytes"`
}

// Parse reads the YAML file at path, applies environment overrides and fills
// defaults. An empty path yields a config built from the environment alone.
func Parse(path string) (Server, error) {
	var cfg Server

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Server{}, fmt.Errorf("can't read config file: %w", err)
		}

		if err = yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Server{}, fmt.Errorf("can't unmarshal config: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()

	return cfg, nil
}

// FromEnv builds a config from the environment only.
func FromEnv() Server {
	var cfg Server
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()

	return cfg
}

func (s *Server) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBucket); ok {
		s.Storage.Bucket = v
	}
	if v, ok := lookup(EnvAPIKey); ok {
		s.API.Key = v
	}
	if v, ok := lookup(EnvStorageBackend); ok {
		s.Storage.Backend = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok {
		s.API.HTTPAddr = v
	}
}

func (s *Server) applyDefaults() {
	if s.API.HTTPAddr == "" {
		s.API.HTTPAddr = defaultHTTPAddr
	}
	if s.API.Path == "" {
		s.API.Path = defaultPath
	}
	if s.API.MaxBodyBytes == 0 {
		s.API.MaxBodyBytes = defaultMaxBodyBytes
	}
	if s.Storage.Backend == "" {
		s.Storage.Backend = BackendGCS
	}
}

func (s Server) Validate() error {
	if s.API.Key == "" {
		return errors.New("api key is required")
	}
	if s.API.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative, got %d", s.API.MaxBodyBytes)
	}

	switch s.Storage.Backend {
	case BackendGCS, BackendS3:
		if s.Storage.Bucket == "" {
			return fmt.Errorf("bucket is required for %s backend", s.Storage.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", s.Storage.Backend)
	}

	return nil
}
