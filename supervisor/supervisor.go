// Package supervisor wires subscriptions, adapters, and the publisher
// fan-out together into one running process: one Machine per
// (exchange, instrument), each with its own websocket transport and all
// Machines of one exchange sharing one REST client, stopped through the
// context cmd/l3bookd cancels on a signal.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/thrasher-corp/l3bookd/config"
	"github.com/thrasher-corp/l3bookd/exchanges/adapter"
	"github.com/thrasher-corp/l3bookd/exchanges/bitfinex"
	"github.com/thrasher-corp/l3bookd/exchanges/bittrex"
	"github.com/thrasher-corp/l3bookd/exchanges/gdax"
	"github.com/thrasher-corp/l3bookd/log"
	"github.com/thrasher-corp/l3bookd/publisher"
	"github.com/thrasher-corp/l3bookd/rest"
	"github.com/thrasher-corp/l3bookd/stream"
)

// Supervisor owns one Publisher and one adapter.Machine per subscription,
// and drains every Machine's Run on shutdown.
type Supervisor struct {
	Log       log.Logger
	Publisher *publisher.Publisher

	machines []*adapter.Machine
}

// ErrUnknownExchange is returned by New when a subscription names an
// exchange no Protocol variant is registered for.
var ErrUnknownExchange = fmt.Errorf("supervisor: unknown exchange")

// New builds one Machine per subscription, wired to the given Publisher.
func New(subs []config.Subscription, cfg *config.Config, pub *publisher.Publisher, logger log.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Supervisor{Log: logger, Publisher: pub}
	restClients := make(map[string]rest.RestClient)

	for _, sub := range subs {
		exCfg := cfg.Exchanges[sub.Exchange]
		proto, restClient, err := buildProtocol(sub.Exchange, sub.InstrumentCode, exCfg)
		if err != nil {
			return nil, err
		}
		if shared, ok := restClients[sub.Exchange]; ok {
			restClient = shared
		} else {
			restClients[sub.Exchange] = restClient
		}

		transport := stream.NewWebsocketTransport(fmt.Sprintf("%s/%s", sub.Exchange, sub.InstrumentCode), logger)
		m := adapter.New(sub.Exchange, sub.InstrumentCode, transport, restClient, proto, pub, logger)
		s.machines = append(s.machines, m)
	}
	return s, nil
}

func buildProtocol(exchange, instrumentID string, exCfg config.ExchangeConfig) (adapter.Protocol, rest.RestClient, error) {
	switch exchange {
	case "gdax":
		proto := gdax.New(instrumentID)
		if exCfg.WebsocketURL != "" {
			proto.URLOverride = exCfg.WebsocketURL
		}
		client := gdax.RestClient(instrumentID)
		if exCfg.RestURL != "" {
			client.BaseURL = exCfg.RestURL
		}
		return proto, client, nil
	case "bitfinex":
		proto := bitfinex.New(instrumentID)
		if exCfg.WebsocketURL != "" {
			proto.URLOverride = exCfg.WebsocketURL
		}
		return proto, noopRestClient{}, nil
	case "bittrex":
		proto := bittrex.New(instrumentID)
		if exCfg.WebsocketURL != "" {
			proto.URLOverride = exCfg.WebsocketURL
		}
		return proto, noopRestClient{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExchange, exchange)
	}
}

// noopRestClient backs protocols whose RequiresBootstrap is always false
// (Bitfinex, Bittrex); adapter.Machine never calls Snapshot for them.
type noopRestClient struct{}

func (noopRestClient) Snapshot(ctx context.Context, instrumentID string) (rest.Snapshot, error) {
	return rest.Snapshot{}, fmt.Errorf("supervisor: snapshot not supported for this protocol")
}

// Run starts every Machine and blocks until every Machine's Run has
// returned, which happens once ctx is canceled or every Machine has failed.
// It returns the first Machine error only when every Machine failed;
// otherwise it returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(s.machines))

	for _, m := range s.machines {
		wg.Add(1)
		go func(m *adapter.Machine) {
			defer wg.Done()
			if err := m.Run(ctx); err != nil && ctx.Err() == nil {
				s.Log.Errorf("supervisor", "%s %s exited: %v", m.Exchange, m.InstrumentID, err)
				errs <- err
			}
		}(m)
	}

	wg.Wait()
	close(errs)

	var firstErr error
	failed := 0
	for err := range errs {
		failed++
		if firstErr == nil {
			firstErr = err
		}
	}
	if failed < len(s.machines) {
		return nil
	}
	return firstErr
}
