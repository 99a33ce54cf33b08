package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/rafnixschaf/iota-sub000/dlog"
	"github.com/rafnixschaf/iota-sub000/log"
)

type NatsContext struct {
	server  *server.Server
	conn    *nats.Conn
	jstream nats.JetStreamContext
	sub     *nats.Subscription
}

func (nctx *NatsContext) URL() string { return nctx.server.ClientURL() }

func (nctx *NatsContext) Shutdown() error {
	err := nctx.sub.Unsubscribe()
	if derr := nctx.conn.Drain(); derr != nil && err == nil {
		err = derr
	}
	nctx.conn.Close()
	nctx.server.Shutdown()
	return err
}

// runEmbeddedServer starts a JetStream enabled NATS server. storeDir may be
// empty for a temporary store.
func runEmbeddedServer(host string, port int, storeDir string) (*server.Server, error) {
	s, err := server.NewServer(&server.Options{
		Host:      host,
		Port:      port,
		JetStream: true,
		StoreDir:  storeDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating server failed: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(10 * time.Second) {
		s.Shutdown()
		return nil, errors.New("server did not become ready in time")
	}
	return s, nil
}

func connectAndSetupJetStream(serverURL string) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(serverURL, nats.Timeout(10*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", serverURL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// ensureStreamExists creates the audit stream unless a bridge node already did.
func ensureStreamExists(js nats.JetStreamContext) error {
	info, err := js.StreamInfo(dlog.StreamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     dlog.StreamName,
			Subjects: []string{dlog.SubjectName},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream '%s': %w", dlog.StreamName, err)
		}
		log.Infof("stream '%s' created by console", dlog.StreamName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get stream info for '%s': %w", dlog.StreamName, err)
	}
	log.Infof("found existing stream '%s' with %d messages", info.Config.Name, info.State.Msgs)
	return nil
}

// setupNATS runs the embedded server and subscribes to audit events. The
// message is acked before receiveCallback runs.
func setupNATS(host string, port int, storeDir string, receiveCallback func(msg *nats.Msg, ackError error)) (*NatsContext, error) {
	s, err := runEmbeddedServer(host, port, storeDir)
	if err != nil {
		return nil, err
	}

	nc, js, err := connectAndSetupJetStream(s.ClientURL())
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("connecting client or setting up JetStream failed: %w", err)
	}

	if err := ensureStreamExists(js); err != nil {
		nc.Close()
		s.Shutdown()
		return nil, err
	}

	sub, err := js.Subscribe(dlog.SubjectName, func(msg *nats.Msg) {
		receiveCallback(msg, msg.Ack())
	}, nats.DeliverNew(), nats.ManualAck())
	if err != nil {
		nc.Close()
		s.Shutdown()
		return nil, fmt.Errorf("subscribing to subject '%s' failed: %w", dlog.SubjectName, err)
	}

	log.Infof("subscribed to [%s], waiting for audit events", dlog.SubjectName)
	return &NatsContext{
		server:  s,
		conn:    nc,
		jstream: js,
		sub:     sub,
	}, nil
}
