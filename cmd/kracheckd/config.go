package main

import (
	"time"

	"kracheck-backend/internal/components/telemetry"
	"kracheck-backend/internal/scrapers/itax"
)

type PortalConfig struct {
	BaseUrl           string  `json:"base_url"`
	TimeoutSeconds    float64 `json:"timeout_seconds"`
	MaxConcurrency    int     `json:"max_concurrency"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	UserAgent         string  `json:"user_agent"`
}

type Config struct {
	Port   int          `json:"port"`
	Portal PortalConfig `json:"portal"`
	// AccessToken guards every route except /healthz when set.
	AccessToken string `json:"access_token"`
}

const defaultPort = 8080

func (c PortalConfig) ClientOptions(output telemetry.Output) itax.ClientOptions {
	return itax.ClientOptions{
		BaseUrl:           c.BaseUrl,
		Timeout:           time.Duration(c.TimeoutSeconds * float64(time.Second)),
		MaxConcurrency:    c.MaxConcurrency,
		RequestsPerSecond: c.RequestsPerSecond,
		CloudflareBypass:  c.CloudflareBypass,
		UserAgent:         c.UserAgent,
		Output:            output,
	}
}
