package services

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-noc/internal/api"
	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/utils"
)

// EventProcessor runs the alarm pipeline for one event.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event map[string]any) models.Result
	ProcessRawEvent(ctx context.Context, payload []byte) models.Result
}

// NOCService implements the gRPC NOCAgent service.
type NOCService struct {
	logger    *slog.Logger
	processor EventProcessor
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewNOCService constructs the NOC service facade.
func NewNOCService(logger *slog.Logger, processor EventProcessor) *NOCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NOCService{
		logger:    logger,
		processor: processor,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// ProcessEvent handles one EventBridge alarm event. Pipeline failures are
// reported in the result's status field; gRPC errors are reserved for
// requests that never reach the pipeline.
func (s *NOCService) ProcessEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.processor == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	event, err := api.FromProtoEvent(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result := s.run(func() models.Result { return s.processor.ProcessEvent(ctx, event) })

	resp, err := api.ToProtoResult(result)
	if err != nil {
		s.logger.Error("encode result failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return resp, nil
}

// ProcessPayload handles a raw JSON event, as read from a file or stdin.
func (s *NOCService) ProcessPayload(ctx context.Context, payload []byte) models.Result {
	if s.processor == nil {
		return models.Result{
			Status:    models.StatusError,
			Error:     "pipeline not configured",
			Timestamp: s.now().UTC(),
		}
	}
	return s.run(func() models.Result { return s.processor.ProcessRawEvent(ctx, payload) })
}

func (s *NOCService) run(process func() models.Result) models.Result {
	start := s.now()
	result := process()
	duration := s.now().Sub(start)

	s.latencies.Observe("event", duration)
	if result.Status == models.StatusError {
		s.logger.Warn("event processing failed", slog.String("error", result.Error))
	}
	if count := s.latencies.Count("event"); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile("event", 95)
		s.logger.Info("event latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
	return result
}

// LatencyP95 returns the current p95 event processing latency.
func (s *NOCService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile("event", 95)
}
