package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Configuration
	HTTPAddr       string
	AllowedOrigins []string

	// NATS Configuration
	NatsURL     string
	Stream      string
	Subject     string
	Durable     string
	MaxMsgs     int
	MaxAge      time.Duration
	Concurrency int

	// Introspection Backend Configuration
	BackendURL     string
	BackendTimeout time.Duration
	Models         []string
	TopK           int

	// Job Configuration
	JobWorkers      int
	JobTTL          time.Duration
	CallbackTimeout time.Duration

	// Database Configuration
	DBPath string
}

// fileConfig mirrors the optional YAML config file. Environment variables
// override anything set here.
type fileConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	NatsURL        string   `yaml:"nats_url"`
	Stream         string   `yaml:"stream"`
	Subject        string   `yaml:"subject"`
	Durable        string   `yaml:"durable"`
	MaxMsgs        int      `yaml:"max_msgs"`
	MaxAge         string   `yaml:"max_age"`
	Concurrency    int      `yaml:"concurrency"`
	BackendURL     string   `yaml:"backend_url"`
	BackendTimeout string   `yaml:"backend_timeout"`
	Models         []string `yaml:"models"`
	TopK           int      `yaml:"top_k"`
	JobWorkers     int      `yaml:"job_workers"`
	JobTTL         string   `yaml:"job_ttl"`
	DBPath         string   `yaml:"db_path"`
}

func Load(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	var fc fileConfig
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		slog.Info("Config file loaded", "file", configFile)
	}

	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", pick(fc.HTTPAddr, ":8081")),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", fc.AllowedOrigins),
		NatsURL:         getEnv("NATS_URL", pick(fc.NatsURL, "nats://127.0.0.1:4222")),
		Stream:          getEnv("STREAM_NAME", pick(fc.Stream, "LENS")),
		Subject:         getEnv("SUBJECT", pick(fc.Subject, "lens.request.*")),
		Durable:         getEnv("QUEUE_DURABLE", pick(fc.Durable, "lens-wq")),
		MaxMsgs:         getEnvInt("QUEUE_MAX_MSGS", pickInt(fc.MaxMsgs, 2000)),
		MaxAge:          getEnvDuration("QUEUE_MAX_AGE", pick(fc.MaxAge, "5m")),
		Concurrency:     getEnvInt("WORKER_CONCURRENCY", pickInt(fc.Concurrency, 2)),
		BackendURL:      getEnv("BACKEND_URL", pick(fc.BackendURL, "http://127.0.0.1:5001")),
		BackendTimeout:  getEnvDuration("BACKEND_TIMEOUT", pick(fc.BackendTimeout, "120s")),
		Models:          getEnvList("MODELS", fc.Models),
		TopK:            getEnvInt("GRID_TOP_K", pickInt(fc.TopK, 5)),
		JobWorkers:      getEnvInt("JOB_WORKERS", pickInt(fc.JobWorkers, 4)),
		JobTTL:          getEnvDuration("JOB_TTL", pick(fc.JobTTL, "15m")),
		CallbackTimeout: getEnvDuration("CALLBACK_TIMEOUT", "10s"),
		DBPath:          getEnv("DB_PATH", pick(fc.DBPath, "data/workbench.sqlite")),
	}
	return cfg, nil
}

func loadDotEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func pick(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

func pickInt(val, defaultVal int) int {
	if val != 0 {
		return val
	}
	return defaultVal
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultVal
}
