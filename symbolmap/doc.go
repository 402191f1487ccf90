// Package symbolmap builds an index from every fully-qualified element name
// declared in a set of compiled proto files to the name of the file that
// declares it.
//
// The index covers messages, enums, enum values, fields, extensions, oneofs,
// services, and methods. Names are formed the same way protoc forms them:
// top-level elements are qualified by the file's package and nested elements
// by the full name of their enclosing element. Enum values are qualified by
// the name of their enum. Note that this differs from protobuf name resolution,
// where enum values are siblings of their enum.
//
// A Builder accepts files in any order, including the same file more than
// once. Building the map checks that the set of files is closed under imports:
// every file named in a dependency list must have been added.
package symbolmap
