package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cadentj/interp-workbench/internal/config"
	"github.com/cadentj/interp-workbench/internal/jobs"
	"github.com/cadentj/interp-workbench/internal/lens"
	"github.com/cadentj/interp-workbench/internal/models"
)

// generateWorkerID creates a unique worker ID using timestamp and random bytes
func generateWorkerID() string {
	timestamp := time.Now().UnixNano()
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	randomHex := hex.EncodeToString(randomBytes)
	return fmt.Sprintf("worker-%d-%s", timestamp, randomHex)
}

// LensEnvelope wraps a lens request on the wire. Request holds the same JSON
// body the HTTP endpoints accept; the query kind comes from the subject
// suffix (lens.request.targeted|line|grid).
type LensEnvelope struct {
	TraceID string          `json:"trace_id,omitempty"`
	ReqID   string          `json:"req_id"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Request json.RawMessage `json:"request"`
}

// LensReply carries a job's terminal payload back to the requester.
type LensReply struct {
	ReqID      string          `json:"req_id"`
	JobID      string          `json:"job_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"dur_ms"`
}

// NATSService serves the same lens queries as the HTTP transport over a
// JetStream work queue. Each message becomes a job so NATS-submitted work
// shares the pool, metrics and audit trail with HTTP submissions.
type NATSService struct {
	conn        *nats.Conn
	js          nats.JetStreamContext
	lensService *lens.Service
	jobManager  *jobs.Manager
	cfg         *config.Config
}

func NewNATSService(cfg *config.Config, lensService *lens.Service, jobManager *jobs.Manager) (*NATSService, error) {
	conn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSService{
		conn:        conn,
		js:          js,
		lensService: lensService,
		jobManager:  jobManager,
		cfg:         cfg,
	}, nil
}

func (s *NATSService) GetConnection() *nats.Conn {
	return s.conn
}

func (s *NATSService) Start(ctx context.Context) error {
	if err := s.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.createConsumer()
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	slog.Info("NATS service starting",
		"stream", s.cfg.Stream,
		"subject", s.cfg.Subject,
		"consumer", s.cfg.Durable,
		"concurrency", s.cfg.Concurrency)

	for i := 0; i < s.cfg.Concurrency; i++ {
		workerID := generateWorkerID()
		go s.worker(ctx, consumer, workerID)
	}

	<-ctx.Done()
	slog.Info("NATS service shutting down")

	s.conn.Close()
	return nil
}

func (s *NATSService) ensureStream() error {
	streamInfo, err := s.js.StreamInfo(s.cfg.Stream)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			_, err = s.js.AddStream(&nats.StreamConfig{
				Name:      s.cfg.Stream,
				Subjects:  []string{s.cfg.Subject},
				MaxMsgs:   int64(s.cfg.MaxMsgs),
				MaxAge:    s.cfg.MaxAge,
				Storage:   nats.FileStorage,
				Retention: nats.WorkQueuePolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create stream: %w", err)
			}
			slog.Info("Created NATS stream", "name", s.cfg.Stream)
		} else {
			return fmt.Errorf("failed to get stream info: %w", err)
		}
	} else {
		hasSubject := false
		for _, subject := range streamInfo.Config.Subjects {
			if subject == s.cfg.Subject {
				hasSubject = true
				break
			}
		}

		if !hasSubject {
			newConfig := streamInfo.Config
			newConfig.Subjects = append(newConfig.Subjects, s.cfg.Subject)
			_, err = s.js.UpdateStream(&newConfig)
			if err != nil {
				return fmt.Errorf("failed to update stream with new subject: %w", err)
			}
			slog.Info("Updated NATS stream with new subject", "name", s.cfg.Stream, "subject", s.cfg.Subject)
		} else {
			slog.Info("NATS stream already exists", "name", s.cfg.Stream, "messages", streamInfo.State.Msgs)
		}
	}

	return nil
}

func (s *NATSService) createConsumer() (*nats.Subscription, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable, nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("failed to create pull consumer: %w", err)
	}

	slog.Info("Created NATS consumer", "durable", s.cfg.Durable)
	return sub, nil
}

func (s *NATSService) worker(ctx context.Context, consumer *nats.Subscription, workerID string) {
	slog.Info("NATS worker starting", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("NATS worker shutting down", "worker_id", workerID)
			return
		default:
			msgs, err := consumer.Fetch(1, nats.MaxWait(time.Second))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				slog.Error("Failed to fetch messages", "worker_id", workerID, "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range msgs {
				s.processMessage(ctx, msg, workerID)
			}
		}
	}
}

func (s *NATSService) processMessage(ctx context.Context, msg *nats.Msg, workerID string) {
	start := time.Now()

	kind := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]

	var envelope LensEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		slog.Error("Failed to parse lens envelope",
			"worker_id", workerID,
			"subject", msg.Subject,
			"error", err)
		msg.Nak()
		return
	}
	if envelope.TraceID == "" {
		envelope.TraceID = envelope.ReqID
	}

	slog.Debug("Processing NATS lens request",
		"worker_id", workerID,
		"req_id", envelope.ReqID,
		"kind", kind,
		"subject", msg.Subject)

	work, err := s.prepare(kind, envelope.Request)
	if err != nil {
		s.reply(envelope, LensReply{
			ReqID:      envelope.ReqID,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}, workerID)
		msg.Ack()
		return
	}

	job := s.jobManager.Create(kind, envelope.TraceID, jobs.Work(work))
	payload, err := job.Wait(ctx)

	reply := LensReply{
		ReqID:      envelope.ReqID,
		JobID:      job.ID(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		reply.Error = err.Error()
	} else if data, marshalErr := json.Marshal(payload); marshalErr == nil {
		reply.Result = data
	} else {
		reply.Error = fmt.Sprintf("failed to marshal result: %v", marshalErr)
	}

	s.reply(envelope, reply, workerID)

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("Failed to acknowledge message",
			"worker_id", workerID,
			"req_id", envelope.ReqID,
			"error", ackErr)
	}

	if err == nil {
		slog.Info("NATS lens request completed",
			"worker_id", workerID,
			"req_id", envelope.ReqID,
			"job_id", job.ID(),
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		slog.Error("NATS lens request failed",
			"worker_id", workerID,
			"req_id", envelope.ReqID,
			"job_id", job.ID(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
	}
}

func (s *NATSService) prepare(kind string, body json.RawMessage) (lens.Work, error) {
	switch kind {
	case "targeted":
		var req models.TargetedLensRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("invalid targeted request: %w", err)
		}
		return s.lensService.PrepareTargeted(req)
	case "line":
		var req models.LineLensRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("invalid line request: %w", err)
		}
		return s.lensService.PrepareLine(req)
	case "grid":
		var req models.GridLensRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("invalid grid request: %w", err)
		}
		return s.lensService.PrepareGrid(req)
	default:
		return nil, fmt.Errorf("unknown lens query kind %q", kind)
	}
}

func (s *NATSService) reply(envelope LensEnvelope, reply LensReply, workerID string) {
	if envelope.ReplyTo == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("Failed to marshal reply",
			"worker_id", workerID,
			"req_id", envelope.ReqID,
			"error", err)
		return
	}
	if err := s.conn.Publish(envelope.ReplyTo, data); err != nil {
		slog.Error("Failed to publish reply",
			"worker_id", workerID,
			"req_id", envelope.ReqID,
			"reply_subject", envelope.ReplyTo,
			"error", err)
	}
}
