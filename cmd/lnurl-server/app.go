package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/btcsuite/btclog/v2"
	"github.com/feelancer21/lnurlbridge"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	timeoutLightning = 60 * time.Second

	eventBuffer int64 = 64
)

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logs, err := setupLogging(cfg.LogLevel)
	if err != nil {
		return err
	}

	ln, err := lnurlbridge.NewLND(*cfg.LND)
	if err != nil {
		return fmt.Errorf("failed to create LND client: %w", err)
	}
	node := lnurlbridge.NewSerialNode(ln)
	defer func() {
		if err := node.Close(); err != nil {
			logs.srvr.Errorf("Closing LND connection: %v", err)
		}
	}()

	identity, err := resolveIdentity(c.Context, node, cfg.NodeAddress)
	if err != nil {
		return err
	}
	logs.srvr.Infof("Advertising node %s", identity.URI())

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: eventBuffer},
		lnurlbridge.NewWatermillLogger(logs.evnt),
	)
	defer pubSub.Close()

	publisher := lnurlbridge.NewWatermillPublisher(pubSub)
	metrics := lnurlbridge.NewMetrics()

	store := lnurlbridge.NewMemoryStore(lnurlbridge.MemoryStoreConfig{
		TTL:            cfg.Tokens.TTL,
		MaxOutstanding: cfg.Tokens.MaxOutstanding,
		SweepTicker:    ticker.New(cfg.Tokens.SweepInterval),
	})

	executor := lnurlbridge.NewPaymentExecutor(
		lnurlbridge.PaymentExecutorConfig{
			Node:      node,
			Workers:   cfg.Payments.Workers,
			QueueSize: cfg.Payments.QueueSize,
			Publisher: publisher,
			Metrics:   metrics,
		},
	)

	server := lnurlbridge.NewServer(lnurlbridge.ServerConfig{
		Identity:  identity,
		PublicURL: cfg.PublicURL,
		Node:      node,
		Tokens:    store,
		Payments:  executor,
		Publisher: publisher,
		Metrics:   metrics,
	})

	g, ctx := errgroup.WithContext(c.Context)

	// Subscribe before anything can publish, gochannel drops messages
	// without subscribers.
	for _, topic := range []string{
		lnurlbridge.TopicPayments, lnurlbridge.TopicAuth,
	} {
		msgs, err := pubSub.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		g.Go(func() error {
			return logEvents(ctx, logs.evnt, topic, msgs)
		})
	}

	g.Go(func() error {
		return store.Run(ctx)
	})
	g.Go(func() error {
		return executor.Run(ctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Listen)
	})

	logs.srvr.Infof("LNURL service started, callbacks at %s", cfg.PublicURL)

	if err := g.Wait(); err != nil {
		return err
	}

	logs.srvr.Infof("LNURL service stopped")
	return nil
}

func resolveIdentity(ctx context.Context, node lnurlbridge.LightningNode,
	address string) (lnurlbridge.NodeIdentity, error) {

	ctx, cancel := context.WithTimeout(ctx, timeoutLightning)
	defer cancel()

	return lnurlbridge.ResolveIdentity(ctx, node, address)
}

func logEvents(ctx context.Context, logger btclog.Logger, topic string,
	msgs <-chan *message.Message) error {

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			logger.Infof("%s %s: %s", topic, msg.UUID, msg.Payload)
			msg.Ack()

		case <-ctx.Done():
			return nil
		}
	}
}
