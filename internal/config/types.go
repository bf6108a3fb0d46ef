package config

import "os"

// Config is the agent configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "30s", "5m").
// Secrets may be left out of the file and supplied via environment
// variables; see ApplyEnv.
type Config struct {
	Store      StoreConfig      `json:"store"`
	Channels   ChannelsConfig   `json:"channels"`
	Alerts     AlertsConfig     `json:"alerts,omitempty"`
	Classifier ClassifierConfig `json:"classifier,omitempty"`
	Dispatch   DispatchConfig   `json:"dispatch,omitempty"`
	Cycle      CycleConfig      `json:"cycle,omitempty"`
	Monitor    MonitorConfig    `json:"monitor,omitempty"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

type StoreConfig struct {
	// Driver is "postgres" or "sqlite"; derived from the DSN when empty.
	Driver string `json:"driver,omitempty"`
	// DSN is the connection string. Usually supplied via DATABASE_URL.
	DSN        string `json:"dsn,omitempty"`
	FetchLimit int    `json:"fetch_limit,omitempty"`
}

// ChannelsConfig lists the outbound gateways in priority order: whatsapp is
// the primary, the rest are fallbacks for hot leads. A section left empty
// disables that channel.
type ChannelsConfig struct {
	WhatsApp  WhatsAppChannel  `json:"whatsapp,omitempty"`
	Evolution EvolutionChannel `json:"evolution,omitempty"`
	UltraMsg  UltraMsgChannel  `json:"ultramsg,omitempty"`
	Telegram  TelegramChannel  `json:"telegram,omitempty"`
}

type WhatsAppChannel struct {
	BaseURL   string `json:"base_url,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type EvolutionChannel struct {
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Instance string `json:"instance,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type UltraMsgChannel struct {
	Instance string `json:"instance,omitempty"`
	Token    string `json:"token,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type TelegramChannel struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

type AlertsConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url,omitempty"`
	SlackChannel    string `json:"slack_channel,omitempty"`
	WebhookURL      string `json:"webhook_url,omitempty"`
}

// ClassifierConfig selects the lead scorer. The heuristic scorer is always
// available; setting an API key enables the Claude scorer with heuristic
// fallback.
type ClassifierConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type DispatchConfig struct {
	MaxRounds      int    `json:"max_rounds,omitempty"`
	BaseDelay      string `json:"base_delay,omitempty"`
	SendsPerMinute int    `json:"sends_per_minute,omitempty"`
}

type CycleConfig struct {
	FetchLimit     int    `json:"fetch_limit,omitempty"`
	InterLeadDelay string `json:"inter_lead_delay,omitempty"`
}

type MonitorConfig struct {
	Interval     string `json:"interval,omitempty"`
	MaxInterval  string `json:"max_interval,omitempty"`
	BackoffAfter int    `json:"backoff_after,omitempty"`
	StopAfter    int    `json:"stop_after,omitempty"`
	// SiteURL enables the site health probe and property links in
	// composed messages.
	SiteURL    string `json:"site_url,omitempty"`
	ReportSpec string `json:"report_spec,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

// ApplyEnv overlays secrets from the environment. Environment values win
// over file values so deployments never need credentials on disk.
func (c *Config) ApplyEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&c.Store.DSN, "DATABASE_URL")
	overlay(&c.Channels.WhatsApp.AuthToken, "WHATSAPP_AUTH_TOKEN")
	overlay(&c.Channels.Evolution.APIKey, "EVOLUTION_API_KEY")
	overlay(&c.Channels.UltraMsg.Token, "ULTRAMSG_TOKEN")
	overlay(&c.Channels.Telegram.Token, "TELEGRAM_TOKEN")
	overlay(&c.Classifier.APIKey, "ANTHROPIC_API_KEY")
	overlay(&c.Alerts.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	overlay(&c.Alerts.WebhookURL, "WEBHOOK_URL")
}
