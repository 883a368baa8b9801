package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// LensClient submits lens queries over NATS and waits for terminal results.
type LensClient interface {
	Targeted(ctx context.Context, req TargetedLensRequest) (*TargetedLensResponse, error)
	Line(ctx context.Context, req LineLensRequest) (*LineLensResponse, error)
	Grid(ctx context.Context, req GridLensRequest) (*GridLensResponse, error)
	Close() error
}

// NATSLensClient implements LensClient against the lens.request.* subjects.
type NATSLensClient struct {
	conn     *nats.Conn
	clientID string
	timeout  time.Duration
}

// NewNATSClient connects to NATS. clientID namespaces reply subjects; leave
// blank for the default.
func NewNATSClient(natsURL, clientID string) (LensClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if clientID == "" {
		clientID = "lens-client"
	}

	return &NATSLensClient{
		conn:     conn,
		clientID: clientID,
		timeout:  5 * time.Minute,
	}, nil
}

func (c *NATSLensClient) Targeted(ctx context.Context, req TargetedLensRequest) (*TargetedLensResponse, error) {
	var resp TargetedLensResponse
	if err := c.sendRequest(ctx, "targeted", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *NATSLensClient) Line(ctx context.Context, req LineLensRequest) (*LineLensResponse, error) {
	var resp LineLensResponse
	if err := c.sendRequest(ctx, "line", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *NATSLensClient) Grid(ctx context.Context, req GridLensRequest) (*GridLensResponse, error) {
	var resp GridLensResponse
	if err := c.sendRequest(ctx, "grid", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *NATSLensClient) sendRequest(ctx context.Context, kind string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("lens.response.%s.%s", c.clientID, reqID)
	topic := fmt.Sprintf("lens.request.%s", kind)

	envelope := lensEnvelope{
		ReqID:   reqID,
		ReplyTo: replySubject,
		Request: body,
	}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	slog.Debug("Sending lens request",
		"topic", topic,
		"req_id", reqID,
		"reply_subject", replySubject)

	// Subscribe to the reply subject before publishing
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		replyChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.Publish(topic, envelopeBytes); err != nil {
		return fmt.Errorf("failed to publish request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-replyChan:
		var reply lensReply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			return fmt.Errorf("failed to parse reply: %w", err)
		}
		if reply.Error != "" {
			return fmt.Errorf("lens request failed: %s", reply.Error)
		}
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out waiting for reply to %s", reqID)
	}
}

func (c *NATSLensClient) Close() error {
	c.conn.Close()
	return nil
}
