package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metanoia-oss/wingman/agent"
	"github.com/metanoia-oss/wingman/internal/fsstore"
	"github.com/metanoia-oss/wingman/internal/ipc"
	"github.com/metanoia-oss/wingman/internal/logutil"
	"github.com/metanoia-oss/wingman/internal/pathutil"
	"github.com/metanoia-oss/wingman/memory"
)

const shutdownTimeout = 20 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent against the WhatsApp transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			stateDir := stateDirFromViper()
			if err := fsstore.EnsureDir(stateDir, 0); err != nil {
				return fmt.Errorf("state dir: %w", err)
			}

			reg, err := registryFromViper(stateDir, logger)
			if err != nil {
				return err
			}
			logger.Info("registry_loaded", "contacts", len(reg.Contacts()), "groups", len(reg.Groups()))
			policies, err := policiesFromViper(stateDir, logger)
			if err != nil {
				return err
			}

			sup, err := supervisorFromViper(stateDir, logger)
			if err != nil {
				return err
			}

			store := memory.NewStore(pathutil.ResolveStateChildDir(viper.GetString("state_dir"), viper.GetString("memory.dir"), "chats"))

			proc, err := agent.NewProcessor(agent.Options{
				Registry:      reg,
				Policies:      policies,
				Gate:          gateFromViper(),
				Memory:        store,
				Model:         modelClientFromViper(),
				Sender:        sup,
				Logger:        logger,
				BotName:       viper.GetString("bot.name"),
				ExtraTriggers: viper.GetStringSlice("bot.triggers"),
				ProcessSelf:   viper.GetBool("bot.process_self"),
				ContextWindow: viper.GetInt("bot.context_window"),
				ModelName:     viper.GetString("llm.model"),
				MaxTokens:     viper.GetInt("llm.max_tokens"),
				Temperature:   viper.GetFloat64("llm.temperature"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("agent_starting", "bot_name", viper.GetString("bot.name"), "model", viper.GetString("llm.model"), "state_dir", stateDir)
			if err := sup.Start(ctx); err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				logger.Info("shutdown_requested")
				shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := sup.Shutdown(shCtx); err != nil {
					logger.Warn("shutdown_incomplete", "error", err)
				}
			}()

			var failed bool
			for ev := range sup.Events() {
				switch ev.Type {
				case ipc.EventMessage:
					if ev.Message != nil {
						proc.Process(ctx, *ev.Message)
					}
				case ipc.EventQRCode:
					if ev.QR != nil {
						// The operator scans this from the terminal.
						fmt.Fprintln(cmd.OutOrStdout(), ev.QR.QR)
					}
					logger.Info("qr_challenge", "action", "scan the code printed above")
				case ipc.EventMaxReconnectReached:
					failed = true
				}
			}

			shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sup.Shutdown(shCtx); err != nil {
				logger.Warn("shutdown_incomplete", "error", err)
			}

			if failed && ctx.Err() == nil {
				return fmt.Errorf("transport link failed permanently")
			}
			logger.Info("agent_stopped")
			return nil
		},
	}

	cmd.Flags().String("state-dir", "", "State directory (default ~/.wingman).")
	_ = viper.BindPFlag("state_dir", cmd.Flags().Lookup("state-dir"))
	cmd.Flags().String("model", "", "Model identifier for replies.")
	_ = viper.BindPFlag("llm.model", cmd.Flags().Lookup("model"))
	cmd.Flags().String("api-key", "", "API key for the completion endpoint.")
	_ = viper.BindPFlag("llm.api_key", cmd.Flags().Lookup("api-key"))
	cmd.Flags().StringSlice("transport-command", nil, "Transport child command and arguments.")
	_ = viper.BindPFlag("transport.command", cmd.Flags().Lookup("transport-command"))

	return cmd
}
