package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fbgate/pkg/bus"
	"fbgate/pkg/channel"
	"fbgate/pkg/channel/facebook"
	"fbgate/pkg/config"
	"fbgate/pkg/engine"
	"fbgate/pkg/gateway"
	"fbgate/pkg/logger"
	"fbgate/pkg/profile"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the webhook gateway",
	Long:  "Runs fbgate as a webhook gateway with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		botEngine, err := engine.New(cfg)
		if err != nil {
			log.Error("Failed to initialize engine", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		profiles, err := profileRepository(runCtx, cfg, log)
		if err != nil {
			log.Error("Failed to initialize profile store", "error", err)
			return
		}

		deliveryBus := bus.NewDeliveryBus()
		sender := facebook.NewSender(nil, log)
		pipeline := facebook.NewPipeline(cfg, botEngine, sender, profiles, log)
		webhook := facebook.NewWebhook(cfg, deliveryBus, log)
		adapters := []channel.Adapter{webhook}

		svc, err := gateway.NewService(cfg, botEngine, deliveryBus, adapters, pipeline, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started",
			"channels", webhook.Name(),
			"engine", engineKind(cfg),
			"tenants", len(cfg.Tenants))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// profileRepository selects the sender-profile store. An empty mongo URI
// selects the in-memory store, which does not survive restarts.
func profileRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (profile.Repository, error) {
	if cfg.Mongo.URI == "" {
		log.Warn("No mongo URI configured, sender profiles are kept in memory")
		return profile.NewMemoryRepository(), nil
	}

	return profile.NewMongoRepository(ctx, cfg.Mongo)
}

func engineKind(cfg *config.Config) string {
	if cfg.Engine.Kind == "" {
		return "remote"
	}

	return cfg.Engine.Kind
}
