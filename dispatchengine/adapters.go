package dispatchengine

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-notification-dispatch/dispatchengine/config"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/apns"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/fcm"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/hcm"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/rustore"
	"github.com/tinywideclouds/go-notification-dispatch/internal/storage/cache"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notification"
)

// BuildAdapters constructs an adapter per configured provider.
// Providers with no configuration are omitted; a provider with broken
// configuration aborts startup rather than degrading silently.
func BuildAdapters(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (map[notification.PushTransport]dispatch.Adapter, error) {
	adapters := make(map[notification.PushTransport]dispatch.Adapter)

	if len(cfg.FCM.CredentialsJSONByAppID) > 0 {
		clients := make(map[string]fcm.MessagingClient, len(cfg.FCM.CredentialsJSONByAppID))
		for appID, creds := range cfg.FCM.CredentialsJSONByAppID {
			app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(creds)))
			if err != nil {
				return nil, fmt.Errorf("fcm app %q init failed: %w", appID, err)
			}
			client, err := app.Messaging(ctx)
			if err != nil {
				return nil, fmt.Errorf("fcm messaging client for app %q failed: %w", appID, err)
			}
			clients[appID] = client
		}
		adapter, err := fcm.NewAdapter(clients, cfg.FCM.DefaultAppID, logger)
		if err != nil {
			return nil, err
		}
		adapters[notification.TransportFirebase] = adapter
		logger.Info("Transport adapter enabled", "transport", "firebase", "apps", len(clients))
	}

	if cfg.Apple.P8KeyContent != "" {
		adapter, err := apns.NewAdapter(apns.Config{
			KeyID:        cfg.Apple.KeyID,
			TeamID:       cfg.Apple.TeamID,
			BundleID:     cfg.Apple.BundleID,
			P8KeyContent: cfg.Apple.P8KeyContent,
		}, logger)
		if err != nil {
			return nil, err
		}
		adapters[notification.TransportApple] = adapter
		logger.Info("Transport adapter enabled", "transport", "apple")
	}

	if cfg.RuStore.ProjectID != "" {
		adapter, err := rustore.NewAdapter(rustore.Config{
			ProjectID:    cfg.RuStore.ProjectID,
			ServiceToken: cfg.RuStore.ServiceToken,
			BaseURL:      cfg.RuStore.URL,
			Timeout:      cfg.CallTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		adapters[notification.TransportRuStore] = adapter
		logger.Info("Transport adapter enabled", "transport", "rustore")
	}

	if cfg.HCM.ClientID != "" {
		adapter, err := hcm.NewAdapter(hcm.Config{
			ClientID:     cfg.HCM.ClientID,
			ClientSecret: cfg.HCM.ClientSecret,
			AuthURL:      cfg.HCM.AuthURL,
			PushEndpoint: cfg.HCM.PushEndpoint,
			Timeout:      cfg.CallTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		adapters[notification.TransportRedStore] = adapter
		logger.Info("Transport adapter enabled", "transport", "redstore")
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no push providers configured")
	}
	return adapters, nil
}

// BuildThrottleStore connects the Redis-backed throttle store when Redis
// is enabled in the configuration.
func BuildThrottleStore(cfg *config.Config, logger *slog.Logger) (dispatch.ThrottleStore, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	logger.Info("Connecting throttle store", "addr", cfg.Redis.Addr)
	client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("throttle store connection failed: %w", err)
	}
	return cache.NewThrottleStore(client), nil
}
