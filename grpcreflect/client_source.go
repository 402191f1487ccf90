package grpcreflect

import (
	"sort"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// ClientSource is a DescriptorSource that fetches descriptors from another
// server using a reflection Client. This allows one server to serve
// reflection on behalf of another, such as a proxy.
//
// Descriptors are cached by the client, so each file is downloaded at most
// once. A DescriptorSource cannot report errors, so failed queries look the
// same as unknown symbols and files. Set OnError to observe them.
type ClientSource struct {
	client *Client
	// OnError, if not nil, is called with errors that occur when querying
	// the remote server, other than the server not knowing the requested
	// symbol or file.
	OnError func(error)
}

var _ DescriptorSource = (*ClientSource)(nil)

// NewClientSource returns a source backed by the given client.
func NewClientSource(client *Client) *ClientSource {
	return &ClientSource{client: client}
}

// Services returns the sorted names of the services exposed by the remote
// server, for use with NewHandler.
func (s *ClientSource) Services() ([]string, error) {
	names, err := s.client.ListServices()
	if err != nil {
		return nil, err
	}
	res := make([]string, len(names))
	for i, n := range names {
		res[i] = string(n)
	}
	sort.Strings(res)
	return res, nil
}

// BySymbol implements DescriptorSource.
func (s *ClientSource) BySymbol(symbol string) [][]byte {
	fd, err := s.client.FileContainingSymbol(protoreflect.FullName(symbol))
	if err != nil {
		s.reportError(err)
		return nil
	}
	return s.closure(fd.Path())
}

// ByFilename implements DescriptorSource.
func (s *ClientSource) ByFilename(filename string) [][]byte {
	fd, err := s.client.FileByFilename(filename)
	if err != nil {
		s.reportError(err)
		return nil
	}
	return s.closure(fd.Path())
}

func (s *ClientSource) closure(filename string) [][]byte {
	res, err := s.client.encodedClosure(filename)
	if err != nil {
		s.reportError(err)
		return nil
	}
	return res
}

func (s *ClientSource) reportError(err error) {
	if s.OnError != nil && !IsElementNotFoundError(err) {
		s.OnError(err)
	}
}
