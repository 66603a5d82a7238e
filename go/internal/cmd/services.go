package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/parthhay/deskroguelikeproto/go/internal/client"
	"github.com/parthhay/deskroguelikeproto/go/internal/config"
	"github.com/parthhay/deskroguelikeproto/go/internal/feed"
	"github.com/parthhay/deskroguelikeproto/go/internal/gateway"
)

type Services struct {
	Client  *client.Service
	Gateway *gateway.Service
	Feed    *feed.Publisher
}

func setupServices(cfg config.Config) (*Services, error) {
	// Client service → view gateway → optional NATS feed. Both sinks are
	// registered as observers before anything starts.
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build client config: %w", err)
	}

	clientService := client.NewService(clientCfg, clockwork.NewRealClock())

	gatewayService := gateway.NewService(cfg.GatewayConfig(), clientService.Dispatcher(), clientService)
	clientService.AddObserver(gatewayService.Observer())

	services := &Services{
		Client:  clientService,
		Gateway: gatewayService,
	}

	if feedCfg, ok := cfg.FeedConfig(clientService.ClientID()); ok {
		publisher, err := feed.Connect(feedCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create view feed: %w", err)
		}
		clientService.AddObserver(publisher)
		services.Feed = publisher
	}

	return services, nil
}

func (s *Services) Close() {
	if s.Feed != nil {
		s.Feed.Close()
	}
}
