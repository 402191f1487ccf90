// Package sort orders file descriptor protos so that every file appears after
// all of the files it imports.
package sort

import (
	"fmt"

	"google.golang.org/protobuf/types/descriptorpb"
)

// SortFiles topologically sorts the given file descriptor protos in place. It
// returns an error if the given files include duplicates (more than one entry
// with the same path) or if any of the files refer to imports which are not
// present in the given files.
//
// Files that do not depend on one another keep their relative order. Import
// cycles are not reported; the compiler rejects those long before a file
// reaches this point.
func SortFiles(files []*descriptorpb.FileDescriptorProto) error {
	byName := make(map[string]*descriptorpb.FileDescriptorProto, len(files))
	for _, fd := range files {
		name := fd.GetName()
		if _, ok := byName[name]; ok {
			return fmt.Errorf("duplicate file %q", name)
		}
		byName[name] = fd
	}

	sorted := make([]*descriptorpb.FileDescriptorProto, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	var visit func(fd *descriptorpb.FileDescriptorProto) error
	visit = func(fd *descriptorpb.FileDescriptorProto) error {
		if _, ok := seen[fd.GetName()]; ok {
			return nil
		}
		seen[fd.GetName()] = struct{}{}
		for _, dep := range fd.GetDependency() {
			depFile := byName[dep]
			if depFile == nil {
				return fmt.Errorf("file %q imports %q, but %q is not present", fd.GetName(), dep, dep)
			}
			if err := visit(depFile); err != nil {
				return err
			}
		}
		sorted = append(sorted, fd)
		return nil
	}
	for _, fd := range files {
		if err := visit(fd); err != nil {
			return err
		}
	}
	copy(files, sorted)
	return nil
}
