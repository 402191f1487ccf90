// Package descmap provides a compact, immutable lookup table from symbols and
// file names to encoded file descriptors, for use by server reflection.
//
// A table is produced once, at build time, from a set of file descriptor
// protos that is closed under imports:
//
//	var buf bytes.Buffer
//	if err := descmap.Write(ctx, &buf, files); err != nil {
//		return err
//	}
//
// The resulting bytes are typically written to a file and embedded into the
// server binary. At startup the server loads them:
//
//	//go:embed reflect.descmap
//	var descriptorTable []byte
//
//	m, err := descmap.Load(descriptorTable)
//
// Loading decodes only the index of the table. The encoded descriptors are
// kept in a single blob and are never decoded by this package; queries return
// sub-slices of that blob for the requested file and its transitive imports,
// ordered so that every file comes after the files it imports.
//
// The table itself is encoded in the protobuf binary format, using this
// schema:
//
//	message Table {
//	  repeated FileEntry   files    = 1; // sorted by name
//	  repeated SymbolEntry symbols  = 2; // sorted by name
//	  repeated string      services = 3; // sorted
//	  bytes                blob     = 4;
//	}
//	message FileEntry {
//	  string          name   = 1;
//	  uint64          offset = 2; // into blob
//	  uint64          length = 3;
//	  repeated uint32 deps   = 4; // indexes into files, in import order
//	}
//	message SymbolEntry {
//	  string name = 1;
//	  uint32 file = 2; // index into files
//	}
package descmap
