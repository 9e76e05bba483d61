package api

import (
	"net/http"

	"github.com/seenimoa/futurenews/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/config. Secrets
// are reported only as masked values.
type ConfigResponse struct {
	News    NewsConfigView    `json:"news"`
	Ollama  OllamaConfigView  `json:"ollama"`
	Storage StorageConfigView `json:"storage"`
	API     APIConfigView     `json:"api"`
	Logging LoggingConfigView `json:"logging"`
}

// NewsConfigView is the displayable part of config.NewsConfig.
type NewsConfigView struct {
	APIKey         string              `json:"api_key,omitempty"`
	BaseURL        string              `json:"base_url"`
	Language       string              `json:"language"`
	Categories     []string            `json:"categories"`
	Sources        []string            `json:"sources"`
	FetchInterval  string              `json:"fetch_interval"`
	RequestTimeout string              `json:"request_timeout"`
	RateLimit      float64             `json:"rate_limit"`
	Feeds          []config.FeedConfig `json:"feeds,omitempty"`
}

// OllamaConfigView is the displayable part of config.OllamaConfig.
type OllamaConfigView struct {
	BaseURL           string `json:"base_url"`
	Model             string `json:"model"`
	Timeout           string `json:"timeout"`
	StreamIdleTimeout string `json:"stream_idle_timeout"`
	ModelsTTL         string `json:"models_ttl"`
}

// StorageConfigView is the displayable part of config.StorageConfig.
type StorageConfigView struct {
	Backend       string `json:"backend"`
	Path          string `json:"path,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisKey      string `json:"redis_key,omitempty"`
}

// APIConfigView is the displayable part of config.APIConfig.
type APIConfigView struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
}

// LoggingConfigView is the displayable part of config.LoggingConfig.
type LoggingConfigView struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file,omitempty"`
}

// sanitizeConfig builds the response view of cfg with secrets masked.
func sanitizeConfig(cfg *config.Config) ConfigResponse {
	return ConfigResponse{
		News: NewsConfigView{
			APIKey:         maskIfSet(cfg.News.APIKey),
			BaseURL:        cfg.News.BaseURL,
			Language:       cfg.News.Language,
			Categories:     cfg.News.Categories,
			Sources:        cfg.News.Sources,
			FetchInterval:  cfg.News.FetchInterval.String(),
			RequestTimeout: cfg.News.RequestTimeout.String(),
			RateLimit:      cfg.News.RateLimit,
			Feeds:          cfg.News.Feeds,
		},
		Ollama: OllamaConfigView{
			BaseURL:           cfg.Ollama.BaseURL,
			Model:             cfg.Ollama.Model,
			Timeout:           cfg.Ollama.Timeout.String(),
			StreamIdleTimeout: cfg.Ollama.StreamIdleTimeout.String(),
			ModelsTTL:         cfg.Ollama.ModelsTTL.String(),
		},
		Storage: StorageConfigView{
			Backend:       cfg.Storage.Backend,
			Path:          cfg.Storage.Path,
			RedisAddr:     cfg.Storage.RedisAddr,
			RedisPassword: maskIfSet(cfg.Storage.RedisPassword),
			RedisDB:       cfg.Storage.RedisDB,
			RedisKey:      cfg.Storage.RedisKey,
		},
		API: APIConfigView{
			Addr:        cfg.API.Addr(),
			CORSOrigins: cfg.API.CORSOrigins,
		},
		Logging: LoggingConfigView{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		},
	}
}

func maskIfSet(secret string) string {
	if secret == "" {
		return ""
	}
	return config.MaskKey(secret)
}

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusNotFound, "no configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    sanitizeConfig(s.cfg),
	})
}

// handleGetConfigKeys returns the status of all secret settings.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusNotFound, "no configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}
