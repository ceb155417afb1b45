package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"replicator/internal/coordinator"
	"replicator/internal/policy"
)

// Server serves a Coordinator over gRPC.
type Server struct {
	coord       *coordinator.Coordinator
	defaultMode string
	logger      *zap.Logger

	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a server for coord. Requests that carry no mode field are
// submitted with defaultMode.
func New(coord *coordinator.Coordinator, defaultMode string, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		coord:       coord,
		defaultMode: defaultMode,
		logger:      logger.With(zap.String("service", "grpc")),
		grpcServer:  grpc.NewServer(opts...),
		health:      health.NewServer(),
	}
	RegisterCoordinatorServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Serving", zap.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Stop marks the service as not serving and waits for in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Submit handles the Submit RPC.
//
// Request fields: payload (standard base64 string, so any bytes can be
// submitted), mode (string, optional), drain (bool, optional). With drain set, a first-ack submission is answered only after
// every replica has acknowledged.
//
// Response fields: id, sequence, policy, outcome, acked, replicas,
// submitted_at (RFC3339Nano), drained, and acks, a list of
// {replica, sequence, elapsed_ms} in completion order.
func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	payload, err := base64.StdEncoding.DecodeString(fields["payload"].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "payload is not valid base64: %v", err)
	}
	mode := s.defaultMode
	if v, ok := fields["mode"]; ok {
		mode = v.GetStringValue()
	}
	drain := fields["drain"].GetBoolValue()

	res, err := s.coord.Submit(ctx, payload, mode)
	if err != nil {
		return nil, s.toStatus(res, err)
	}

	drained := false
	if drain && res.Pending != nil {
		acks, err := res.Pending.Drain(ctx)
		res.Acks = append(res.Acks, acks...)
		if err != nil {
			return nil, s.toStatus(res, err)
		}
		drained = true
	}

	reply, err := encodeResult(res, drained)
	if err != nil {
		s.logger.Error("Failed to encode reply", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return reply, nil
}

func (s *Server) toStatus(res *coordinator.Result, err error) error {
	var seq uint64
	if res != nil {
		seq = res.Entry.Sequence
	}

	var perr *policy.Error
	switch {
	case errors.As(err, &perr):
		return status.Errorf(codes.InvalidArgument, "entry %d: %v", seq, err)
	case errors.Is(err, coordinator.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "entry %d: %v", seq, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "entry %d: %v", seq, err)
	default:
		s.logger.Error("Submit failed", zap.Uint64("sequence", seq), zap.Error(err))
		return status.Errorf(codes.Internal, "submit: %v", err)
	}
}

func encodeResult(res *coordinator.Result, drained bool) (*structpb.Struct, error) {
	acks := make([]interface{}, 0, len(res.Acks))
	for _, ack := range res.Acks {
		acks = append(acks, map[string]interface{}{
			"replica":    ack.ReplicaID,
			"sequence":   ack.Sequence,
			"elapsed_ms": float64(ack.Elapsed) / float64(time.Millisecond),
		})
	}

	acked := res.Acked
	if drained {
		acked = res.Replicas
	}

	return structpb.NewStruct(map[string]interface{}{
		"id":           res.ID.String(),
		"sequence":     res.Entry.Sequence,
		"policy":       res.Policy.String(),
		"outcome":      res.Outcome.String(),
		"acked":        acked,
		"replicas":     res.Replicas,
		"submitted_at": res.Entry.SubmittedAt.Format(time.RFC3339Nano),
		"drained":      drained,
		"acks":         acks,
	})
}
