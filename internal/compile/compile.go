// Package compile produces the file descriptor protos that go into a
// descriptor map. They can be compiled from .proto sources or read from
// descriptor sets produced by "protoc --include_imports -o".
package compile

import (
	"context"
	"fmt"
	"io"

	"github.com/bufbuild/protocompile"
	"github.com/spf13/afero"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/reflectserver/internal/sort"
	"github.com/jhump/reflectserver/symbolmap"
)

// Inputs names the sources of file descriptors.
type Inputs struct {
	// ImportPaths are the directories searched for Files and their imports.
	// If empty, names are resolved relative to the current directory.
	ImportPaths []string
	// DescriptorSets are paths to serialized FileDescriptorSet messages.
	DescriptorSets []string
	// Files are .proto sources to compile, relative to an import path.
	Files []string
}

// Load reads all descriptor sets and compiles all source files named by in,
// using fs for all file access. The result contains every file once, along
// with all of its transitive imports, and is ordered so that every file comes
// after its imports.
//
// When the same file name appears in more than one input, the first one wins.
// Descriptor sets are consulted before compiled sources. If a file imports
// one that is in none of the inputs, the error is a
// *symbolmap.MissingDependencyError.
func Load(ctx context.Context, fs afero.Fs, in Inputs) ([]*descriptorpb.FileDescriptorProto, error) {
	var res []*descriptorpb.FileDescriptorProto
	seen := map[string]struct{}{}
	add := func(fds []*descriptorpb.FileDescriptorProto) {
		for _, fd := range fds {
			if _, ok := seen[fd.GetName()]; ok {
				continue
			}
			seen[fd.GetName()] = struct{}{}
			res = append(res, fd)
		}
	}

	for _, path := range in.DescriptorSets {
		fds, err := LoadDescriptorSet(fs, path)
		if err != nil {
			return nil, err
		}
		add(fds)
	}
	if len(in.Files) > 0 {
		fds, err := Compile(ctx, fs, in.ImportPaths, in.Files...)
		if err != nil {
			return nil, err
		}
		add(fds)
	}

	// report imports that are not supplied the same way the descriptor map
	// does, as a *symbolmap.MissingDependencyError
	b := symbolmap.NewBuilder()
	b.AddFiles(res...)
	if _, err := b.Build(); err != nil {
		return nil, err
	}
	if err := sort.SortFiles(res); err != nil {
		return nil, err
	}
	return res, nil
}

// LoadDescriptorSet loads the serialized FileDescriptorSet at the given path.
// The files are returned in the order they appear in the set.
func LoadDescriptorSet(fs afero.Fs, path string) ([]*descriptorpb.FileDescriptorProto, error) {
	bb, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var fds descriptorpb.FileDescriptorSet
	if err = proto.Unmarshal(bb, &fds); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor set %s: %w", path, err)
	}
	return fds.File, nil
}

// Compile compiles the named .proto files, which are located by searching
// importPaths in fs. Imports of the well-known files under google/protobuf
// resolve to built-in copies when they are not found in fs. The result holds
// the compiled files and all of their transitive imports, each file after the
// files it imports. Source code info is retained so that clients can show
// comments.
func Compile(ctx context.Context, fs afero.Fs, importPaths []string, files ...string) ([]*descriptorpb.FileDescriptorProto, error) {
	compiler := &protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: importPaths,
			Accessor: func(path string) (io.ReadCloser, error) {
				return fs.Open(path)
			},
		}),
		SourceInfoMode: protocompile.SourceInfoStandard,
	}
	compiled, err := compiler.Compile(ctx, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile: %w", err)
	}

	var res []*descriptorpb.FileDescriptorProto
	seen := map[string]struct{}{}
	var addFile func(fd protoreflect.FileDescriptor)
	addFile = func(fd protoreflect.FileDescriptor) {
		if _, ok := seen[fd.Path()]; ok {
			return
		}
		seen[fd.Path()] = struct{}{}
		imports := fd.Imports()
		for i, length := 0, imports.Len(); i < length; i++ {
			addFile(imports.Get(i).FileDescriptor)
		}
		res = append(res, protodesc.ToFileDescriptorProto(fd))
	}
	for _, fd := range compiled {
		addFile(fd)
	}
	return res, nil
}
