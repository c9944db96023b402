package gateway

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/DMHCAIT/turteltrader/internal/gateway/breeze"
	"github.com/DMHCAIT/turteltrader/internal/infra"
)

// Broker bundles the two gateway roles a running engine needs. Stream
// is non-nil only in LIVE mode; the caller starts and stops it.
type Broker struct {
	Market MarketData
	Orders Gateway
	Stream *breeze.QuoteStream
}

// NewBroker wires the gateway implementation for the configured mode.
//
// LIVE mode refuses to start without CONFIRM_REAL_MONEY=true in the
// environment. A config typo must never put real money at risk.
func NewBroker(cfg *infra.Config) (*Broker, error) {
	slog.Info("initializing broker gateway", slog.String("mode", cfg.Trading.Mode))

	switch cfg.Trading.Mode {
	case infra.ModePaper:
		paper := NewPaperGateway(cfg.Trading.TotalCapital, cfg.Trading.BrokeragePct)
		return &Broker{Market: paper, Orders: paper}, nil

	case infra.ModeLive:
		if os.Getenv("CONFIRM_REAL_MONEY") != "true" {
			err := fmt.Errorf("SAFETY_GUARD: live trading requires CONFIRM_REAL_MONEY=true in the environment")
			slog.Error(err.Error())
			return nil, err
		}

		slog.Warn("connecting to LIVE broker, real money at risk")
		client := breeze.NewClient(breeze.ClientConfig{
			RestURL:      cfg.Gateway.Breeze.RestURL,
			WSURL:        cfg.Gateway.Breeze.WSURL,
			APIKey:       cfg.Gateway.Breeze.APIKey,
			APISecret:    cfg.Gateway.Breeze.APISecret,
			SessionToken: cfg.Gateway.Breeze.SessionToken,
		})
		live := NewLiveGateway(client)

		broker := &Broker{Market: live, Orders: live}
		if cfg.Gateway.Breeze.WSURL != "" {
			broker.Stream = breeze.NewQuoteStream(cfg.Gateway.Breeze.WSURL, cfg.Trading.Symbols)
			live.AttachStream(broker.Stream)
		}
		return broker, nil

	default:
		return nil, fmt.Errorf("unknown trading mode: %s", cfg.Trading.Mode)
	}
}
