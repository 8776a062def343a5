// Command brokerdemo is a minimal host program exercising the broker's
// public surface: it registers a provider, subscribes a listener, publishes
// a handful of envelopes, and shuts down cleanly on SIGINT/SIGTERM.
//
// It is intentionally small. The broker core itself does not define a
// module-lifecycle framework (host integration is a collaborator contract,
// not a shipped implementation); this program exists to show the
// register-on-activate / unregister-on-deactivate pattern end to end, not
// to be a reusable agent framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/stdr"

	"github.com/tenzoki/mcpbroker/internal/broker"
	"github.com/tenzoki/mcpbroker/internal/codec"
	"github.com/tenzoki/mcpbroker/internal/config"
	"github.com/tenzoki/mcpbroker/internal/envelope"
)

// demoProvider implements registry.Provider.
type demoProvider struct {
	topics []string
}

func (p *demoProvider) ProvidedTopics() []string { return p.topics }

// onMessageFunc adapts a plain function into registry.Subscriber, the way
// http.HandlerFunc adapts a function into http.Handler.
type onMessageFunc func(env *envelope.Envelope)

func (f onMessageFunc) OnMessage(env *envelope.Envelope) { f(env) }

func main() {
	configFile := flag.String("config", "", "path to a broker.yaml config file (optional)")
	count := flag.Int("count", 5, "number of demo envelopes to publish")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("brokerdemo: loading config from %s: %v", *configFile, err)
		}
		cfg = loaded
	}

	stdLog := log.New(os.Stdout, "", log.LstdFlags)
	logger := stdr.New(stdLog)
	b := broker.New(cfg, logger)
	defer b.Shutdown()

	mp := codec.NewMsgpackCodec()

	provider := &demoProvider{topics: []string{"demo/greeting"}}
	providerHandle, ok := b.RegisterContext("demo/greeting", provider)
	if !ok {
		log.Fatal("brokerdemo: failed to register demo provider")
	}
	defer b.UnregisterContext("demo/greeting", providerHandle)

	received := make(chan string, *count)
	listener := onMessageFunc(func(env *envelope.Envelope) {
		value, err := codec.Extract[string](mp, env)
		if err != nil {
			logger.Error(err, "brokerdemo: decode failed")
			return
		}
		select {
		case received <- value:
		default:
		}
	})
	subHandle, ok := b.Subscribe("demo/greeting", listener)
	if !ok {
		log.Fatal("brokerdemo: failed to subscribe demo listener")
	}
	defer b.UnsubscribeAll(subHandle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("brokerdemo: starting", "queue_capacity", cfg.QueueCapacity, "count", *count)

	for i := 0; i < *count; i++ {
		env, err := codec.CreateMessage(mp, "demo/greeting", 1, fmt.Sprintf("hello #%d", i))
		if err != nil {
			logger.Error(err, "brokerdemo: encode failed")
			continue
		}
		if !b.Publish(env) {
			logger.Info("brokerdemo: publish rejected (queue full)")
		}
		select {
		case <-ctx.Done():
			logger.Info("brokerdemo: interrupted, shutting down")
			return
		case <-time.After(50 * time.Millisecond):
		}
	}

	for i := 0; i < *count; i++ {
		select {
		case msg := <-received:
			logger.Info("brokerdemo: received", "message", msg)
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			return
		}
	}
}
