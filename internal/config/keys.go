package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of a secret setting.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "pub...abc"
}

// CheckAPIKeys reports the status of every secret the service uses.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("NewsData API Key", cfg.News.APIKey, EnvPrefix+"_NEWS_API_KEY"),
		checkKey("Redis Password", cfg.Storage.RedisPassword, EnvPrefix+"_STORAGE_REDIS_PASSWORD"),
	}
}

func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{Name: name, IsSet: value != ""}
	if !status.IsSet {
		status.Source = KeySourceNone
		return status
	}
	if os.Getenv(envVar) != "" {
		status.Source = KeySourceEnv
	} else {
		status.Source = KeySourceConfig
	}
	status.Masked = MaskKey(value)
	return status
}

// MaskKey masks a secret for display, showing only the first and last 3 chars.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
