package grpcreflect

import (
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// DescriptorSource provides encoded file descriptors to a Handler.
//
// Both methods return the encoded google.protobuf.FileDescriptorProto of the
// requested file along with those of all of its transitive dependencies, with
// every file appearing after the files it imports. They return an empty result
// if the requested symbol or file is not known.
//
// Implementations must be safe for concurrent use.
type DescriptorSource interface {
	// BySymbol returns the file that declares the given fully-qualified
	// symbol, and its dependencies.
	BySymbol(symbol string) [][]byte
	// ByFilename returns the file with the given name, and its dependencies.
	ByFilename(filename string) [][]byte
}

// FilesSource is a DescriptorSource backed by a registry of file descriptors.
type FilesSource struct {
	files *protoregistry.Files
}

var _ DescriptorSource = (*FilesSource)(nil)

// NewFilesSource returns a source that serves the files in the given registry.
// Use protoregistry.GlobalFiles to serve all files linked into the program.
// The registry must not be modified after this is called, unless it is the
// global registry (which is synchronized).
func NewFilesSource(files *protoregistry.Files) *FilesSource {
	return &FilesSource{files: files}
}

// BySymbol implements DescriptorSource.
func (s *FilesSource) BySymbol(symbol string) [][]byte {
	name := protoreflect.FullName(symbol)
	d, err := s.files.FindDescriptorByName(name)
	if err != nil {
		// The registry names enum values as siblings of their enum, but
		// clients may also qualify them with the enum name.
		parent, perr := s.files.FindDescriptorByName(name.Parent())
		if perr != nil {
			return nil
		}
		ed, ok := parent.(protoreflect.EnumDescriptor)
		if !ok || ed.Values().ByName(name.Name()) == nil {
			return nil
		}
		d = ed
	}
	return encodeWithDependencies(d.ParentFile())
}

// ByFilename implements DescriptorSource.
func (s *FilesSource) ByFilename(filename string) [][]byte {
	fd, err := s.files.FindFileByPath(filename)
	if err != nil {
		return nil
	}
	return encodeWithDependencies(fd)
}

// encodeWithDependencies returns the encoded descriptors of fd and all of its
// transitive imports, dependencies first. It returns nil if any of them fails
// to marshal.
func encodeWithDependencies(fd protoreflect.FileDescriptor) [][]byte {
	var result [][]byte
	seen := map[string]struct{}{}
	var visit func(fd protoreflect.FileDescriptor) bool
	visit = func(fd protoreflect.FileDescriptor) bool {
		if _, ok := seen[fd.Path()]; ok {
			return true
		}
		seen[fd.Path()] = struct{}{}
		imports := fd.Imports()
		for i, length := 0, imports.Len(); i < length; i++ {
			if !visit(imports.Get(i).FileDescriptor) {
				return false
			}
		}
		encoded, err := proto.MarshalOptions{Deterministic: true}.Marshal(protodesc.ToFileDescriptorProto(fd))
		if err != nil {
			return false
		}
		result = append(result, encoded)
		return true
	}
	if !visit(fd) {
		return nil
	}
	return result
}

// ServiceInfoProvider is implemented by *grpc.Server.
type ServiceInfoProvider interface {
	GetServiceInfo() map[string]grpc.ServiceInfo
}

// ServiceNames returns the sorted names of all services registered with the
// given server. This is useful for serving reflection for a server's own
// services, together with a FilesSource for protoregistry.GlobalFiles.
func ServiceNames(s ServiceInfoProvider) []string {
	svcInfo := s.GetServiceInfo()
	svcNames := make([]string, 0, len(svcInfo))
	for n := range svcInfo {
		svcNames = append(svcNames, n)
	}
	sort.Strings(svcNames)
	return svcNames
}
