// Package grpcreflect implements the [gRPC reflection service] on top of a
// pluggable source of file descriptors, along with a client for that service.
//
// The server side is split in two. A Handler answers individual reflection
// requests using a DescriptorSource and a fixed list of service names. A
// Server adapts a Handler to the bidirectional stream of the reflection
// service, for both the v1 and v1alpha versions of the protocol:
//
//	m, err := descmap.Load(descriptorTable)
//	if err != nil {
//		return err
//	}
//	srv := grpcreflect.NewServer(grpcreflect.NewHandler(m.Services(), m))
//	grpcreflect.Register(grpcServer, srv)
//
// A DescriptorSource only has to return encoded file descriptors for a symbol
// or a file name. Implementations in this module include *descmap.Map (a
// static table generated at build time), FilesSource (a protoregistry.Files,
// such as the global registry of linked-in generated code), and ClientSource
// (another server, queried using reflection).
//
// The server does not support extensions: requests for the file containing
// an extension or for the extension numbers of a message always produce an
// error response with code UNIMPLEMENTED.
//
// The Client in this package makes it easy to ask any server that supports
// reflection for metadata on its exported services, which could be used to
// construct a dynamic client.
//
// [gRPC reflection service]: https://github.com/grpc/grpc/blob/master/src/proto/grpc/reflection/v1/reflection.proto
package grpcreflect
