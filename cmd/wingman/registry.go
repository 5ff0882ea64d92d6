package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/metanoia-oss/wingman/contacts"
	"github.com/metanoia-oss/wingman/internal/pathutil"
	"github.com/metanoia-oss/wingman/internal/supervisor"
	"github.com/metanoia-oss/wingman/llm"
	"github.com/metanoia-oss/wingman/policy"
	"github.com/metanoia-oss/wingman/providers/openai"
	"github.com/metanoia-oss/wingman/safety"
)

func stateDirFromViper() string {
	return pathutil.ResolveStateDir(viper.GetString("state_dir"))
}

// stateFile resolves a config path relative to the state dir unless it is
// already absolute.
func stateFile(stateDir, configured string) string {
	configured = pathutil.ExpandHomePath(configured)
	if configured == "" {
		return ""
	}
	if filepath.IsAbs(configured) {
		return filepath.Clean(configured)
	}
	return filepath.Join(stateDir, configured)
}

func registryFromViper(stateDir string, logger *slog.Logger) (*contacts.Registry, error) {
	reg := contacts.NewRegistry(logger)
	if path := stateFile(stateDir, viper.GetString("contacts_file")); path != "" {
		if err := reg.LoadContactsFile(path); err != nil {
			return nil, fmt.Errorf("load contacts: %w", err)
		}
	}
	if path := stateFile(stateDir, viper.GetString("groups_file")); path != "" {
		if err := reg.LoadGroupsFile(path); err != nil {
			return nil, fmt.Errorf("load groups: %w", err)
		}
	}
	return reg, nil
}

func policiesFromViper(stateDir string, logger *slog.Logger) (policy.Set, error) {
	path := stateFile(stateDir, viper.GetString("policies_file"))
	if path == "" {
		return policy.Set{Fallback: policy.ActionSelective}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("policies_file_missing", "path", path)
		return policy.Set{Fallback: policy.ActionSelective}, nil
	}
	set, err := policy.LoadFile(path)
	if err != nil {
		return policy.Set{}, fmt.Errorf("load policies: %w", err)
	}
	logger.Info("policies_loaded", "path", path, "rules", len(set.Rules))
	return set, nil
}

func gateFromViper() *safety.Gate {
	return safety.NewGate(safety.Config{
		MaxRepliesPerHour: viper.GetInt("safety.max_replies_per_hour"),
		DefaultCooldown:   time.Duration(viper.GetInt("safety.cooldown_seconds")) * time.Second,
		QuietHours: safety.QuietHours{
			Enabled:   viper.GetBool("safety.quiet_hours.enabled"),
			StartHour: viper.GetInt("safety.quiet_hours.start"),
			EndHour:   viper.GetInt("safety.quiet_hours.end"),
		},
	})
}

func modelClientFromViper() llm.Client {
	return openai.New(
		viper.GetString("llm.endpoint"),
		viper.GetString("llm.api_key"),
		viper.GetDuration("llm.request_timeout"),
	)
}

func supervisorFromViper(stateDir string, logger *slog.Logger) (*supervisor.Supervisor, error) {
	command := viper.GetStringSlice("transport.command")
	factory, err := supervisor.NewExecChildFactory(
		command,
		pathutil.ExpandHomePath(viper.GetString("transport.dir")),
		nil,
	)
	if err != nil {
		return nil, err
	}
	return supervisor.New(supervisor.Options{
		NewChild:      factory,
		Logger:        logger,
		StatePath:     filepath.Join(stateDir, "last_disconnect.json"),
		PingInterval:  viper.GetDuration("transport.ping_interval"),
		PingTimeout:   viper.GetDuration("transport.ping_timeout"),
		ShutdownGrace: viper.GetDuration("transport.shutdown_grace"),
	})
}
