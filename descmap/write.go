package descmap

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/reflectserver/symbolmap"
)

// Write encodes a descriptor table for the given files and writes it to w.
// See Marshal.
func Write(ctx context.Context, w io.Writer, files []*descriptorpb.FileDescriptorProto) error {
	data, err := Marshal(ctx, files)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// FromFiles is a convenience that marshals a table for the given files and
// then loads it.
func FromFiles(ctx context.Context, files []*descriptorpb.FileDescriptorProto) (*Map, error) {
	data, err := Marshal(ctx, files)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Marshal encodes a descriptor table for the given files. The files may be in
// any order and may include the same file more than once (the first one wins).
// But the set must be closed under imports: if any file imports a file that
// is not present, this returns a *symbolmap.MissingDependencyError.
//
// The output is deterministic: the same set of files always produces the same
// bytes, regardless of input order.
func Marshal(ctx context.Context, files []*descriptorpb.FileDescriptorProto) ([]byte, error) {
	b := symbolmap.NewBuilder()
	b.AddFiles(files...)
	symbols, err := b.Build()
	if err != nil {
		return nil, err
	}

	unique := make([]*descriptorpb.FileDescriptorProto, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, fd := range files {
		if _, ok := seen[fd.GetName()]; ok {
			continue
		}
		seen[fd.GetName()] = struct{}{}
		unique = append(unique, fd)
	}
	sort.Slice(unique, func(i, j int) bool {
		return unique[i].GetName() < unique[j].GetName()
	})
	fileIndex := make(map[string]uint32, len(unique))
	for i, fd := range unique {
		fileIndex[fd.GetName()] = uint32(i)
	}

	encoded := make([][]byte, len(unique))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.GOMAXPROCS(0))
	for i, fd := range unique {
		i, fd := i, fd
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := proto.MarshalOptions{Deterministic: true}.Marshal(fd)
			if err != nil {
				return fmt.Errorf("failed to marshal %q: %w", fd.GetName(), err)
			}
			encoded[i] = data
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	t := table{
		files:    make([]fileEntry, len(unique)),
		symbols:  make([]symbolEntry, 0, symbols.Len()),
		services: symbols.Services(),
	}
	var size int
	for _, data := range encoded {
		size += len(data)
	}
	t.blob = make([]byte, 0, size)
	for i, fd := range unique {
		entry := fileEntry{
			name:   fd.GetName(),
			offset: uint64(len(t.blob)),
			length: uint64(len(encoded[i])),
		}
		for _, dep := range fd.GetDependency() {
			entry.deps = append(entry.deps, fileIndex[dep])
		}
		t.files[i] = entry
		t.blob = append(t.blob, encoded[i]...)
	}
	symbols.Range(func(symbol, file string) bool {
		t.symbols = append(t.symbols, symbolEntry{name: symbol, file: fileIndex[file]})
		return true
	})
	return t.marshal(), nil
}
