package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate providers
	errors = append(errors, validateProvider("llm", c.LLM.Provider, c.LLM.APIKey, c.LLM.BaseURL)...)
	errors = append(errors, validateProvider("embedding", c.Embedding.Provider, c.Embedding.APIKey, c.Embedding.BaseURL)...)

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 16384 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 16384",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Embedding.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimension",
			Message: "dimension must be positive",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	// Validate Retrieval config
	if c.Retrieval.FAQThreshold <= 0 || c.Retrieval.FAQThreshold > 2 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.faq_threshold",
			Message: "faq_threshold must be in (0, 2]",
		})
	}

	if c.Retrieval.DocThreshold <= 0 || c.Retrieval.DocThreshold > 2 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.doc_threshold",
			Message: "doc_threshold must be in (0, 2]",
		})
	}

	if c.Retrieval.FAQThreshold > c.Retrieval.DocThreshold {
		errors = append(errors, ValidationError{
			Field:   "retrieval.faq_threshold",
			Message: "faq_threshold must not be looser than doc_threshold",
		})
	}

	if c.Retrieval.ContextChunks < 1 || c.Retrieval.DocCandidates < c.Retrieval.ContextChunks {
		errors = append(errors, ValidationError{
			Field:   "retrieval.context_chunks",
			Message: "context_chunks must be positive and at most doc_candidates",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if o := c.Processor.ChunkOverlap; o != nil && (*o < 0 || *o >= c.Processor.ChunkSize) {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate RateLimit config
	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
		errors = append(errors, ValidationError{
			Field:   "rate_limit",
			Message: "requests and window must be positive",
		})
	}

	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		errors = append(errors, ValidationError{
			Field:   "rate_limit.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.RateLimit.Backend),
		})
	} else if c.RateLimit.Backend == "redis" && c.Cache.RedisAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "rate_limit.backend",
			Message: "redis backend requires cache.redis_addr",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	return errors
}

func validateProvider(section, provider, apiKey, baseURL string) []ValidationError {
	var errors []ValidationError

	switch provider {
	case "openai":
		if apiKey == "" {
			errors = append(errors, ValidationError{
				Field:   section + ".api_key",
				Message: "api_key is required for the openai provider",
			})
		}
	case "ollama":
		if baseURL == "" {
			errors = append(errors, ValidationError{
				Field:   section + ".base_url",
				Message: "Ollama base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   section + ".provider",
			Message: fmt.Sprintf("unknown provider: %s", provider),
		})
	}

	if baseURL != "" {
		if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   section + ".base_url",
				Message: "invalid base URL",
			})
		}
	}

	return errors
}
