package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/terra-clan/part-configurator/internal/models"
)

// DefaultSubject is the subject prefix export jobs are published under
const DefaultSubject = "configurator.exports"

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URL     string
	Subject string
	Timeout time.Duration
}

// NATSDispatcher publishes export jobs to <subject>.<format>
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSDispatcher connects to NATS
func NewNATSDispatcher(cfg NATSConfig) (*NATSDispatcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("part-configurator"),
		nats.Timeout(timeout),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	return &NATSDispatcher{conn: conn, subject: subject, timeout: timeout}, nil
}

// Subject returns the subject a job of format is published to
func Subject(prefix string, format models.ExportFormat) string {
	return prefix + "." + strings.ToLower(string(format))
}

// jobMessage builds the NATS message for job; the job id doubles as the
// message id for server-side de-duplication
func jobMessage(prefix string, job *models.ExportJob) (*nats.Msg, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export job: %w", err)
	}

	msg := nats.NewMsg(Subject(prefix, job.Format))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, job.JobID)
	msg.Header.Set("Content-Type", "application/json")
	return msg, nil
}

// Dispatch publishes job and waits for the server to acknowledge the flush
func (d *NATSDispatcher) Dispatch(ctx context.Context, job *models.ExportJob) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	msg, err := jobMessage(d.subject, job)
	if err != nil {
		return err
	}

	if err := d.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish export job: %w", err)
	}

	if err := d.flush(ctx); err != nil {
		return fmt.Errorf("failed to flush export job: %w", err)
	}

	return nil
}

// flush needs a deadline; one is added when ctx has none
func (d *NATSDispatcher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.conn.FlushWithContext(ctx)
}

// Ping reports whether the connection is up
func (d *NATSDispatcher) Ping(ctx context.Context) error {
	if d.conn.Status() != nats.CONNECTED {
		return errors.New("nats not connected: " + d.conn.Status().String())
	}
	return d.flush(ctx)
}

// Close drains pending messages and closes the connection
func (d *NATSDispatcher) Close() error {
	return d.conn.Drain()
}
