// pkg/config/env_config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvironmentConfig holds deployment settings read from RTS_* variables
type EnvironmentConfig struct {
	ServerAddr    string
	ServerPort    int
	MaxClients    int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TickRate      int
	TicksPerState int
	WorldWidth    float64
	WorldHeight   float64
	MinNodeSize   float64
	LogLevel      string
	IndexChecks   bool

	// Circuit Breaker Configuration
	CircuitBreakerMaxRequests         int
	CircuitBreakerInterval            time.Duration
	CircuitBreakerTimeout             time.Duration
	CircuitBreakerMaxConsecutiveFails int

	// Resource Management Configuration
	MaxMemoryMB           int64
	MaxGoroutines         int
	ShutdownTimeout       time.Duration
	ResourceCheckInterval time.Duration
}

// ValidationError names the field that failed validation
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// LoadDotEnv loads variables from the given files, or .env when none are
// given. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfigFromEnv builds an EnvironmentConfig from the process environment
// after loading an optional .env file.
func LoadConfigFromEnv() (*EnvironmentConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config := &EnvironmentConfig{
		ServerAddr:    getEnvOrDefault("RTS_SERVER_ADDR", "localhost"),
		ServerPort:    getEnvAsIntOrDefault("RTS_SERVER_PORT", 8080),
		MaxClients:    getEnvAsIntOrDefault("RTS_MAX_CLIENTS", 32),
		ReadTimeout:   getEnvAsDurationOrDefault("RTS_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getEnvAsDurationOrDefault("RTS_WRITE_TIMEOUT", 30*time.Second),
		TickRate:      getEnvAsIntOrDefault("RTS_TICK_RATE", 20),
		TicksPerState: getEnvAsIntOrDefault("RTS_TICKS_PER_STATE", 3),
		WorldWidth:    getEnvAsFloatOrDefault("RTS_WORLD_WIDTH", 4000),
		WorldHeight:   getEnvAsFloatOrDefault("RTS_WORLD_HEIGHT", 4000),
		MinNodeSize:   getEnvAsFloatOrDefault("RTS_MIN_NODE_SIZE", 400),
		LogLevel:      getEnvOrDefault("RTS_LOG_LEVEL", "INFO"),
		IndexChecks:   getEnvAsBoolOrDefault("RTS_INDEX_CHECKS", false),

		CircuitBreakerMaxRequests:         getEnvAsIntOrDefault("RTS_CB_MAX_REQUESTS", 3),
		CircuitBreakerInterval:            getEnvAsDurationOrDefault("RTS_CB_INTERVAL", 60*time.Second),
		CircuitBreakerTimeout:             getEnvAsDurationOrDefault("RTS_CB_TIMEOUT", 30*time.Second),
		CircuitBreakerMaxConsecutiveFails: getEnvAsIntOrDefault("RTS_CB_MAX_FAILURES", 5),

		MaxMemoryMB:           int64(getEnvAsIntOrDefault("RTS_MAX_MEMORY_MB", 500)),
		MaxGoroutines:         getEnvAsIntOrDefault("RTS_MAX_GOROUTINES", 200),
		ShutdownTimeout:       getEnvAsDurationOrDefault("RTS_SHUTDOWN_TIMEOUT", 30*time.Second),
		ResourceCheckInterval: getEnvAsDurationOrDefault("RTS_RESOURCE_CHECK_INTERVAL", 10*time.Second),
	}

	if err := validateEnvironmentConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateEnvironmentConfig(c *EnvironmentConfig) error {
	switch {
	case c.ServerAddr == "":
		return &ValidationError{Field: "ServerAddr", Value: c.ServerAddr, Message: "must not be empty"}
	case c.ServerPort < 1024 || c.ServerPort > 65535:
		return &ValidationError{Field: "ServerPort", Value: c.ServerPort, Message: "must be between 1024 and 65535"}
	case c.MaxClients < 1 || c.MaxClients > 1000:
		return &ValidationError{Field: "MaxClients", Value: c.MaxClients, Message: "must be between 1 and 1000"}
	case c.ReadTimeout < time.Second || c.ReadTimeout > time.Minute:
		return &ValidationError{Field: "ReadTimeout", Value: c.ReadTimeout, Message: "must be between 1s and 1m"}
	case c.WriteTimeout < time.Second || c.WriteTimeout > time.Minute:
		return &ValidationError{Field: "WriteTimeout", Value: c.WriteTimeout, Message: "must be between 1s and 1m"}
	case c.TickRate < 1 || c.TickRate > 100:
		return &ValidationError{Field: "TickRate", Value: c.TickRate, Message: "must be between 1 and 100"}
	case c.TicksPerState < 1:
		return &ValidationError{Field: "TicksPerState", Value: c.TicksPerState, Message: "must be positive"}
	case c.WorldWidth < 100 || c.WorldWidth > 100000:
		return &ValidationError{Field: "WorldWidth", Value: c.WorldWidth, Message: "must be between 100 and 100000"}
	case c.WorldHeight < 100 || c.WorldHeight > 100000:
		return &ValidationError{Field: "WorldHeight", Value: c.WorldHeight, Message: "must be between 100 and 100000"}
	case c.MinNodeSize <= 0:
		return &ValidationError{Field: "MinNodeSize", Value: c.MinNodeSize, Message: "must be positive"}
	case c.CircuitBreakerMaxRequests < 1:
		return &ValidationError{Field: "CircuitBreakerMaxRequests", Value: c.CircuitBreakerMaxRequests, Message: "must be positive"}
	case c.CircuitBreakerInterval < time.Second:
		return &ValidationError{Field: "CircuitBreakerInterval", Value: c.CircuitBreakerInterval, Message: "must be at least 1s"}
	case c.CircuitBreakerTimeout < time.Second:
		return &ValidationError{Field: "CircuitBreakerTimeout", Value: c.CircuitBreakerTimeout, Message: "must be at least 1s"}
	case c.CircuitBreakerMaxConsecutiveFails < 1:
		return &ValidationError{Field: "CircuitBreakerMaxConsecutiveFails", Value: c.CircuitBreakerMaxConsecutiveFails, Message: "must be positive"}
	case c.MaxMemoryMB < 1:
		return &ValidationError{Field: "MaxMemoryMB", Value: c.MaxMemoryMB, Message: "must be positive"}
	case c.MaxGoroutines < 1:
		return &ValidationError{Field: "MaxGoroutines", Value: c.MaxGoroutines, Message: "must be positive"}
	case c.ShutdownTimeout < time.Second:
		return &ValidationError{Field: "ShutdownTimeout", Value: c.ShutdownTimeout, Message: "must be at least 1s"}
	case c.ResourceCheckInterval < time.Second:
		return &ValidationError{Field: "ResourceCheckInterval", Value: c.ResourceCheckInterval, Message: "must be at least 1s"}
	}
	return nil
}

// ApplyEnvironmentOverrides copies explicitly set RTS_* variables onto config.
// Variables that are unset leave the file configuration untouched.
func ApplyEnvironmentOverrides(config *SimulationConfig) error {
	env, err := LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment configuration: %w", err)
	}

	if isSet("RTS_SERVER_ADDR") || isSet("RTS_SERVER_PORT") {
		config.NetworkConfig.ServerAddress = net.JoinHostPort(env.ServerAddr, strconv.Itoa(env.ServerPort))
	}
	if isSet("RTS_SERVER_PORT") {
		config.NetworkConfig.ServerPort = env.ServerPort
	}
	if isSet("RTS_MAX_CLIENTS") {
		config.NetworkConfig.MaxClients = env.MaxClients
	}
	if isSet("RTS_TICKS_PER_STATE") {
		config.NetworkConfig.TicksPerState = env.TicksPerState
	}
	if isSet("RTS_TICK_RATE") {
		config.Rules.TickRate = env.TickRate
	}
	if isSet("RTS_WORLD_WIDTH") {
		config.World.Width = env.WorldWidth
	}
	if isSet("RTS_WORLD_HEIGHT") {
		config.World.Height = env.WorldHeight
	}
	if isSet("RTS_MIN_NODE_SIZE") {
		config.Index.MinSize = env.MinNodeSize
	}
	if env.IndexChecks && config.Index.ConsistencyCheckInterval == 0 {
		config.Index.ConsistencyCheckInterval = 1
	}
	return nil
}

func isSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
