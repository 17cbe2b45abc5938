package config

import (
	"fmt"
	"net/url"
)

// ValidationError 配置校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate 校验配置，返回全部错误
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	backendURLs := []struct {
		field string
		value string
	}{
		{"backend.functionsUrl", c.Backend.FunctionsURL},
		{"backend.docProcUrl", c.Backend.DocProcURL},
		{"backend.embeddingUrl", c.Backend.EmbeddingURL},
	}
	for _, u := range backendURLs {
		if !isHTTPURL(u.value) {
			errs = append(errs, ValidationError{
				Field:   u.field,
				Message: fmt.Sprintf("invalid backend URL: %q", u.value),
			})
		}
	}

	if c.Backend.GenerateTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.generateTimeout",
			Message: "generateTimeout must not be negative",
		})
	}
	if c.Backend.BeaconTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.beaconTimeout",
			Message: "beaconTimeout must not be negative",
		})
	}

	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, ValidationError{
			Field:   "redis.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.Upload.SuccessPause < 0 || c.Upload.FailurePause < 0 || c.Upload.SummaryClearDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "upload",
			Message: "pauses and delays must not be negative",
		})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Log.Level),
		})
	}

	return errs
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
