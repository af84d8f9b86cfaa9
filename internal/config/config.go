// File: backend/internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultPort                    = "8080"
	DefaultSystemAPIKeyPlaceholder = "SET_A_REAL_KEY_IN_CONFIG_OR_ENV_7c1f29ab52e14d0a"

	DefaultDispatchIntervalMs      = 150
	DefaultBatchPauseMs            = 200
	DefaultFailureProbeThreshold   = 10
	DefaultRotation                = "concurrent"
	DefaultLightningSubBatchSize   = 100
	DefaultLightningCallTimeoutMs  = 1000
	DefaultLightningMaxInFlight    = 1000
	DefaultProviderTimeoutSeconds  = 15
	DefaultProbeTimeoutSecondsJSON = 5
)

// --- Struct Definitions ---

type ServerConfig struct {
	Port   string `json:"port"`
	APIKey string `json:"apiKey"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// EngineConfig tunes the standard campaign execution path.
type EngineConfig struct {
	DispatchInterval      time.Duration
	BatchPause            time.Duration
	GlobalRatePerSecond   float64
	Rotation              string
	FailureProbeThreshold int
}

type EngineConfigJSON struct {
	DispatchIntervalMs    int     `json:"dispatchIntervalMs"`
	BatchPauseMs          int     `json:"batchPauseMs"`
	GlobalRatePerSecond   float64 `json:"globalRatePerSecond,omitempty"`
	Rotation              string  `json:"rotation,omitempty"`
	FailureProbeThreshold int     `json:"failureProbeThreshold,omitempty"`
}

// LightningConfig tunes the fire-and-forget execution path.
type LightningConfig struct {
	SubBatchSize int
	CallTimeout  time.Duration
	MaxInFlight  int64
}

type LightningConfigJSON struct {
	SubBatchSize  int   `json:"subBatchSize"`
	CallTimeoutMs int   `json:"callTimeoutMs"`
	MaxInFlight   int64 `json:"maxInFlight"`
}

// ProviderConfig points at the identity provider's dispatch endpoint.
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
}

type ProviderConfigJSON struct {
	BaseURL               string `json:"baseUrl"`
	APIKey                string `json:"apiKey,omitempty"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	ProbeTimeoutSeconds   int    `json:"probeTimeoutSeconds,omitempty"`
}

type AppConfig struct {
	Server         ServerConfig
	Engine         EngineConfig
	Lightning      LightningConfig
	Provider       ProviderConfig
	Logging        LoggingConfig
	loadedFromPath string
}

func (ac *AppConfig) GetLoadedFromPath() string { return ac.loadedFromPath }

type AppConfigJSON struct {
	Server    ServerConfig        `json:"server"`
	Engine    EngineConfigJSON    `json:"engine"`
	Lightning LightningConfigJSON `json:"lightning"`
	Provider  ProviderConfigJSON  `json:"provider"`
	Logging   LoggingConfig       `json:"logging"`
}

// EnvOverrides are parsed from the environment and take precedence over the
// config file.
type EnvOverrides struct {
	ConfigPath     string `env:"RESETFLOW_CONFIG"`
	Port           string `env:"RESETFLOW_PORT"`
	APIKey         string `env:"RESETFLOW_API_KEY"`
	ProviderAPIKey string `env:"RESETFLOW_PROVIDER_API_KEY"`
}

// LoadEnvOverrides parses the RESETFLOW_* environment variables.
func LoadEnvOverrides() (EnvOverrides, error) {
	var ov EnvOverrides
	if err := env.Parse(&ov); err != nil {
		return ov, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return ov, nil
}

// ApplyEnv layers non-empty environment overrides onto the loaded config.
func (ac *AppConfig) ApplyEnv(ov EnvOverrides) {
	if ov.Port != "" {
		ac.Server.Port = ov.Port
		log.Printf("Config: Port overridden by RESETFLOW_PORT: %s", ov.Port)
	}
	if ov.APIKey != "" {
		ac.Server.APIKey = ov.APIKey
		log.Printf("Config: API key overridden by RESETFLOW_API_KEY (length: %d)", len(ov.APIKey))
	}
	if ov.ProviderAPIKey != "" {
		ac.Provider.APIKey = ov.ProviderAPIKey
		log.Printf("Config: Provider API key overridden by RESETFLOW_PROVIDER_API_KEY (length: %d)", len(ov.ProviderAPIKey))
	}
}

// Load reads the main config file, falling back to defaults (and saving a
// default file) when it is missing or partially unparseable. The returned
// AppConfig is always usable; the error reports what went wrong during
// loading, if anything.
func Load(mainConfigPath string) (*AppConfig, error) {
	if mainConfigPath == "" {
		mainConfigPath = "config.json"
		log.Printf("Config: Main config path empty, using default: %s", mainConfigPath)
	}
	log.Printf("Config: Attempting to load main config from: %s", mainConfigPath)

	appCfgJSON := DefaultAppConfigJSON()
	var originalLoadError error

	data, err := os.ReadFile(mainConfigPath)
	if err != nil {
		originalLoadError = err
		if os.IsNotExist(err) {
			log.Printf("Config: Main config file '%s' not found. Using defaults and attempting to save.", mainConfigPath)
			if saveErr := SaveStructured(appCfgJSON, mainConfigPath); saveErr != nil {
				log.Printf("Config: Failed to save default config file '%s': %v", mainConfigPath, saveErr)
			} else {
				log.Printf("Config: Saved default config to '%s'", mainConfigPath)
			}
		} else {
			log.Printf("Config: Error reading main config '%s': %v. Using defaults.", mainConfigPath, err)
		}
	} else {
		if errUnmarshal := json.Unmarshal(data, &appCfgJSON); errUnmarshal != nil {
			log.Printf("Config: Error unmarshalling main config '%s': %v. Using defaults for unparsed fields.", mainConfigPath, errUnmarshal)
			originalLoadError = errUnmarshal
		}
	}

	appConfig := ConvertJSONToAppConfig(appCfgJSON)
	appConfig.loadedFromPath = mainConfigPath
	return appConfig, originalLoadError
}

// ConvertJSONToAppConfig converts the wire/file form into the runtime form,
// applying bounds and defaults for missing or invalid values.
func ConvertJSONToAppConfig(jsonCfg AppConfigJSON) *AppConfig {
	cfg := &AppConfig{
		Server:  jsonCfg.Server,
		Logging: jsonCfg.Logging,
		Engine: EngineConfig{
			DispatchInterval:      time.Duration(jsonCfg.Engine.DispatchIntervalMs) * time.Millisecond,
			BatchPause:            time.Duration(jsonCfg.Engine.BatchPauseMs) * time.Millisecond,
			GlobalRatePerSecond:   jsonCfg.Engine.GlobalRatePerSecond,
			Rotation:              jsonCfg.Engine.Rotation,
			FailureProbeThreshold: jsonCfg.Engine.FailureProbeThreshold,
		},
		Lightning: LightningConfig{
			SubBatchSize: jsonCfg.Lightning.SubBatchSize,
			CallTimeout:  time.Duration(jsonCfg.Lightning.CallTimeoutMs) * time.Millisecond,
			MaxInFlight:  jsonCfg.Lightning.MaxInFlight,
		},
		Provider: ProviderConfig{
			BaseURL:        jsonCfg.Provider.BaseURL,
			APIKey:         jsonCfg.Provider.APIKey,
			RequestTimeout: time.Duration(jsonCfg.Provider.RequestTimeoutSeconds) * time.Second,
			ProbeTimeout:   time.Duration(jsonCfg.Provider.ProbeTimeoutSeconds) * time.Second,
		},
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Engine.DispatchInterval < 0 {
		cfg.Engine.DispatchInterval = DefaultDispatchIntervalMs * time.Millisecond
	}
	if cfg.Engine.BatchPause < 0 {
		cfg.Engine.BatchPause = DefaultBatchPauseMs * time.Millisecond
	}
	if cfg.Engine.Rotation != "concurrent" && cfg.Engine.Rotation != "round_robin" {
		cfg.Engine.Rotation = DefaultRotation
	}
	if cfg.Engine.FailureProbeThreshold <= 0 {
		cfg.Engine.FailureProbeThreshold = DefaultFailureProbeThreshold
	}
	if cfg.Lightning.SubBatchSize <= 0 || cfg.Lightning.SubBatchSize > DefaultLightningSubBatchSize {
		cfg.Lightning.SubBatchSize = DefaultLightningSubBatchSize
	}
	if cfg.Lightning.CallTimeout <= 0 {
		cfg.Lightning.CallTimeout = DefaultLightningCallTimeoutMs * time.Millisecond
	}
	if cfg.Lightning.MaxInFlight <= 0 {
		cfg.Lightning.MaxInFlight = DefaultLightningMaxInFlight
	}
	if cfg.Provider.RequestTimeout <= 0 {
		cfg.Provider.RequestTimeout = DefaultProviderTimeoutSeconds * time.Second
	}
	if cfg.Provider.ProbeTimeout <= 0 {
		cfg.Provider.ProbeTimeout = DefaultProbeTimeoutSecondsJSON * time.Second
	}
	return cfg
}

// SaveStructured writes the JSON form of the configuration to disk.
func SaveStructured(cfgJSON AppConfigJSON, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("cannot save structured config, file path is empty")
	}
	data, err := json.MarshalIndent(cfgJSON, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal app config JSON to data: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write app config to file '%s': %w", filePath, err)
	}
	log.Printf("Config: Successfully saved main configuration to '%s'", filePath)
	return nil
}

// DefaultAppConfigJSON returns the defaults written on first run.
func DefaultAppConfigJSON() AppConfigJSON {
	return AppConfigJSON{
		Server: ServerConfig{
			Port:   DefaultPort,
			APIKey: DefaultSystemAPIKeyPlaceholder,
		},
		Engine: EngineConfigJSON{
			DispatchIntervalMs:    DefaultDispatchIntervalMs,
			BatchPauseMs:          DefaultBatchPauseMs,
			Rotation:              DefaultRotation,
			FailureProbeThreshold: DefaultFailureProbeThreshold,
		},
		Lightning: LightningConfigJSON{
			SubBatchSize:  DefaultLightningSubBatchSize,
			CallTimeoutMs: DefaultLightningCallTimeoutMs,
			MaxInFlight:   DefaultLightningMaxInFlight,
		},
		Provider: ProviderConfigJSON{
			BaseURL:               "https://identitytoolkit.googleapis.com",
			RequestTimeoutSeconds: DefaultProviderTimeoutSeconds,
			ProbeTimeoutSeconds:   DefaultProbeTimeoutSecondsJSON,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// DefaultConfig returns the runtime form of the defaults.
func DefaultConfig() *AppConfig { return ConvertJSONToAppConfig(DefaultAppConfigJSON()) }
