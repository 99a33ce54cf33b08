package dlog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"
)

const (
	StreamName  string = "BRIDGE_AUDIT"
	SubjectName string = "bridge.audit.>"
	subject     string = "bridge.audit.log"
)

type natsWriter struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subject       string
	ctx           context.Context
	ctxCancel     context.CancelFunc
	publishErrors chan error
}

func newNATSWriter() *natsWriter {
	nw := &natsWriter{
		publishErrors: make(chan error, 1000),
	}
	nw.ctx, nw.ctxCancel = context.WithCancel(context.Background())
	return nw
}

// Connect dials NATS and creates the audit stream if it does not exist yet.
func (nw *natsWriter) Connect(address string) error {
	nc, err := nats.Connect(address)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(
		nats.PublishAsyncErrHandler(nw.publishErrorHandler),
		nats.PublishAsyncMaxPending(10000),
		nats.Context(nw.ctx),
	)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.StreamInfo(StreamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{SubjectName},
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("failed to create stream: %w", err)
		}
	} else if err != nil {
		nc.Close()
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	nw.nc = nc
	nw.js = js
	nw.subject = subject
	return nil
}

// Write is called by zerolog once per event.
func (nw *natsWriter) Write(p []byte) (int, error) {
	// zerolog reuses p after Write returns.
	msg := make([]byte, len(p))
	copy(msg, p)
	if _, err := nw.js.PublishAsync(nw.subject, msg); err != nil {
		fmt.Fprintf(os.Stderr, "NATS publish error: %v\n", err)
		return 0, err
	}
	return len(p), nil
}

func (nw *natsWriter) publishErrorHandler(_ nats.JetStream, _ *nats.Msg, err error) {
	select {
	case nw.publishErrors <- err:
	default:
	}
}

// Flush waits until every pending publish was acknowledged or ctx is done.
func (nw *natsWriter) Flush(ctx context.Context) error {
	select {
	case <-nw.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (nw *natsWriter) Close() error {
	nw.ctxCancel()
	if nw.nc != nil {
		nw.nc.Close()
	}
	return nil
}
