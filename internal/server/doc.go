// Package server exposes a Coordinator over gRPC as the
// replicator.v1.Coordinator service with a single unary Submit method.
// Messages are google.protobuf.Struct values, so no generated code is
// involved; the field layout is described on Server.Submit.
package server
