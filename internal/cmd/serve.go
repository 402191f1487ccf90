package cmd

import (
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jhump/reflectserver/descmap"
	"github.com/jhump/reflectserver/grpcreflect"
)

func getCmdServe(c *rootCommand) *cobra.Command {
	conf := defaultConfig()
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a descriptor map over gRPC reflection",
		Long: `Serve a descriptor map over gRPC reflection.

  Both grpc.reflection.v1 and grpc.reflection.v1alpha are served. The server
  runs until the process is interrupted.`,
		Example: `  reflectmap serve --map service.map --addr :50051
  REFLECTMAP_MAP=service.map reflectmap serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			applyFlag(flags, "map", &c.conf.Map)
			applyFlag(flags, "addr", &c.conf.Addr)
			return c.serve()
		},
	}

	flags := serveCmd.Flags()
	flags.String("map", conf.Map, "path of the descriptor map to serve; env REFLECTMAP_MAP")
	flags.String("addr", conf.Addr, "address to listen on; env REFLECTMAP_ADDR")
	return serveCmd
}

func (c *rootCommand) serve() error {
	logger := c.gs.Logger
	if c.conf.Map == "" {
		return errMissingMap
	}
	data, err := afero.ReadFile(c.gs.FS, c.conf.Map)
	if err != nil {
		return err
	}
	m, err := descmap.Load(data)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", c.conf.Addr)
	if err != nil {
		return err
	}
	s := newGRPCServer(logrus.NewEntry(logger))
	grpcreflect.Register(s, grpcreflect.NewServer(grpcreflect.NewHandler(m.Services(), m)))

	go func() {
		<-c.gs.Ctx.Done()
		logger.Debug("Stopping server")
		s.GracefulStop()
	}()

	logger.WithFields(logrus.Fields{
		"addr":     lis.Addr().String(),
		"files":    len(m.Files()),
		"symbols":  m.NumSymbols(),
		"services": m.Services(),
	}).Info("Serving reflection")
	return s.Serve(lis)
}

// newGRPCServer returns a server that logs every call through entry and
// turns handler panics into INTERNAL errors.
func newGRPCServer(entry *logrus.Entry) *grpc.Server {
	recoveryOpt := grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
		entry.WithField("panic", p).Error("Recovered from panic in handler")
		return status.Errorf(codes.Internal, "%v", p)
	})
	return grpc.NewServer(
		grpc_middleware.WithStreamServerChain(
			grpc_logrus.StreamServerInterceptor(entry),
			grpc_recovery.StreamServerInterceptor(recoveryOpt),
		),
		grpc_middleware.WithUnaryServerChain(
			grpc_logrus.UnaryServerInterceptor(entry),
			grpc_recovery.UnaryServerInterceptor(recoveryOpt),
		),
	)
}
