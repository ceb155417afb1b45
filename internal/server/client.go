package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// AckReply is one acknowledgment in a SubmitReply.
type AckReply struct {
	ReplicaID string
	Sequence  uint64
	Elapsed   time.Duration
}

// SubmitReply is the decoded Submit response.
type SubmitReply struct {
	ID          string
	Sequence    uint64
	Policy      string
	Outcome     string
	Acked       int
	Replicas    int
	SubmittedAt time.Time
	Drained     bool
	Acks        []AckReply
}

// Client calls a Coordinator service.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial creates a client for addr. Connections are plaintext; extra options
// are applied after the transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Submit sends payload with mode. The payload is base64-encoded on the wire
// and may hold arbitrary bytes. An empty mode leaves the choice to the
// server's default.
func (c *Client) Submit(ctx context.Context, payload []byte, mode string, drain bool) (*SubmitReply, error) {
	fields := map[string]interface{}{
		"payload": base64.StdEncoding.EncodeToString(payload),
		"drain":   drain,
	}
	if mode != "" {
		fields["mode"] = mode
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, submitMethod, req, out); err != nil {
		return nil, err
	}
	return decodeReply(out)
}

// Ready reports whether the server reports the Coordinator service as
// serving.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func decodeReply(s *structpb.Struct) (*SubmitReply, error) {
	f := s.GetFields()
	reply := &SubmitReply{
		ID:       f["id"].GetStringValue(),
		Sequence: uint64(f["sequence"].GetNumberValue()),
		Policy:   f["policy"].GetStringValue(),
		Outcome:  f["outcome"].GetStringValue(),
		Acked:    int(f["acked"].GetNumberValue()),
		Replicas: int(f["replicas"].GetNumberValue()),
		Drained:  f["drained"].GetBoolValue(),
	}

	if ts := f["submitted_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode submitted_at: %w", err)
		}
		reply.SubmittedAt = t
	}

	for _, v := range f["acks"].GetListValue().GetValues() {
		af := v.GetStructValue().GetFields()
		reply.Acks = append(reply.Acks, AckReply{
			ReplicaID: af["replica"].GetStringValue(),
			Sequence:  uint64(af["sequence"].GetNumberValue()),
			Elapsed:   time.Duration(af["elapsed_ms"].GetNumberValue() * float64(time.Millisecond)),
		})
	}
	return reply, nil
}
