package grpcreflect

import (
	"io"

	"google.golang.org/grpc"
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	refv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

// Server implements the v1 reflection service using a Handler. Use
// Register to expose it, which also exposes the v1alpha version.
type Server struct {
	refv1.UnimplementedServerReflectionServer
	handler *Handler
}

var _ refv1.ServerReflectionServer = (*Server)(nil)

// NewServer returns a reflection service that answers requests using the
// given handler.
func NewServer(handler *Handler) *Server {
	return &Server{handler: handler}
}

// Register registers both the v1 and v1alpha reflection services on the given
// gRPC server.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	refv1.RegisterServerReflectionServer(s, srv)
	refv1alpha.RegisterServerReflectionServer(s, srv.V1Alpha())
}

// ServerReflectionInfo is the reflection service handler. Requests on a
// stream are answered in order, one at a time. Nothing is remembered between
// requests, so every response that includes file descriptors includes all of
// the dependencies of the requested file, even if an earlier response on the
// same stream already included some of them.
func (s *Server) ServerReflectionInfo(stream refv1.ServerReflection_ServerReflectionInfoServer) error {
	for {
		in, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		out, err := s.handler.Handle(in)
		if err != nil {
			return err
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
}

// V1Alpha returns an implementation of the v1alpha version of the reflection
// service that is backed by s.
func (s *Server) V1Alpha() refv1alpha.ServerReflectionServer {
	return v1AlphaServer{s: s}
}

type v1AlphaServer struct {
	refv1alpha.UnimplementedServerReflectionServer
	s *Server
}

func (v v1AlphaServer) ServerReflectionInfo(stream refv1alpha.ServerReflection_ServerReflectionInfoServer) error {
	for {
		in, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		out, err := v.s.handler.Handle(toV1Request(in))
		if err != nil {
			return err
		}
		if err := stream.Send(toV1AlphaResponse(out)); err != nil {
			return err
		}
	}
}
