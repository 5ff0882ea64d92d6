package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("bot.name", "Wingman")
	viper.SetDefault("bot.process_self", false)
	viper.SetDefault("bot.context_window", 30)
	viper.SetDefault("bot.triggers", []string{})

	viper.SetDefault("state_dir", "~/.wingman")
	viper.SetDefault("memory.dir", "")
	viper.SetDefault("contacts_file", "contacts.yaml")
	viper.SetDefault("groups_file", "groups.yaml")
	viper.SetDefault("policies_file", "policies.yaml")

	viper.SetDefault("llm.endpoint", "")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.max_tokens", 300)
	viper.SetDefault("llm.temperature", 0.8)
	viper.SetDefault("llm.request_timeout", 90*time.Second)

	viper.SetDefault("safety.max_replies_per_hour", 30)
	viper.SetDefault("safety.cooldown_seconds", 60)
	viper.SetDefault("safety.quiet_hours.enabled", false)
	viper.SetDefault("safety.quiet_hours.start", 0)
	viper.SetDefault("safety.quiet_hours.end", 6)

	viper.SetDefault("transport.command", []string{"node", "transport/index.js"})
	viper.SetDefault("transport.dir", "")
	viper.SetDefault("transport.ping_interval", 30*time.Second)
	viper.SetDefault("transport.ping_timeout", 10*time.Second)
	viper.SetDefault("transport.shutdown_grace", 5*time.Second)
}
