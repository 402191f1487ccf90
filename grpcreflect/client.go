package grpcreflect

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	refv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/reflectserver/symbolmap"
)

// NotFoundError is returned when the server does not know a requested file,
// symbol or extension.
type NotFoundError struct {
	// Kind is "file", "symbol" or "extension".
	Kind string
	Name string
	// Cause is set when the requested element was found but one of the files
	// it depends on was not.
	Cause *NotFoundError
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
	if e.Cause != nil {
		msg += "\ncaused by: " + e.Cause.Error()
	}
	return msg
}

// IsElementNotFoundError reports whether err says that the server does not
// know the requested file, symbol or extension.
func IsElementNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func notFound(kind, name string) func(*NotFoundError) error {
	return func(cause *NotFoundError) error {
		return &NotFoundError{Kind: kind, Name: name, Cause: cause}
	}
}

// asNotFound converts NOT_FOUND statuses and missing dependencies into the
// error made by nf. Other errors are returned as they are.
func asNotFound(err error, nf func(*NotFoundError) error) error {
	var cause *NotFoundError
	switch {
	case status.Code(err) == codes.NotFound:
		return nf(nil)
	case errors.As(err, &cause):
		return nf(cause)
	}
	return err
}

// ProtocolError is returned when the server answers with a different kind of
// response than the request calls for.
type ProtocolError struct {
	Want string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("reflection protocol error: response is not a %s", e.Want)
}

// Client queries a reflection server and builds descriptors from its answers.
// Every file received is cached for the life of the client, so each file is
// downloaded once even when it is the dependency of many others.
//
// A Client holds one stream open to the server. Call Reset to close it; the
// next query opens a new one.
type Client struct {
	conn *conn

	mu     sync.RWMutex
	protos map[string]*descriptorpb.FileDescriptorProto
	files  protoregistry.Files
}

// NewClientV1 returns a client that speaks v1 of the reflection protocol
// through stub. Streams are opened with ctx.
func NewClientV1(ctx context.Context, stub refv1.ServerReflectionClient) *Client {
	return newClient(ctx, stub, nil)
}

// NewClientV1Alpha returns a client that speaks v1alpha of the reflection
// protocol through stub. Streams are opened with ctx.
func NewClientV1Alpha(ctx context.Context, stub refv1alpha.ServerReflectionClient) *Client {
	return newClient(ctx, nil, stub)
}

// NewClientAuto returns a client that uses v1 of the reflection protocol if
// the server at cc supports it, and v1alpha otherwise. After falling back to
// v1alpha, v1 is tried again once an hour in case the server was upgraded.
func NewClientAuto(ctx context.Context, cc grpc.ClientConnInterface) *Client {
	return newClient(ctx, refv1.NewServerReflectionClient(cc), refv1alpha.NewServerReflectionClient(cc))
}

func newClient(ctx context.Context, v1 refv1.ServerReflectionClient, v1alpha refv1alpha.ServerReflectionClient) *Client {
	c := &Client{
		conn: &conn{
			ctx:     ctx,
			now:     time.Now,
			v1:      v1,
			v1alpha: v1alpha,
		},
		protos: map[string]*descriptorpb.FileDescriptorProto{},
	}
	// an abandoned client must not leak its stream
	runtime.SetFinalizer(c, (*Client).Reset)
	return c
}

// Reset closes the client's stream, if one is open. Cached files are kept.
func (c *Client) Reset() {
	c.conn.close()
}

// ListServices returns the names of the services the server exposes.
func (c *Client) ListServices() ([]protoreflect.FullName, error) {
	resp, err := c.send(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_ListServices{ListServices: "*"},
	})
	if err != nil {
		return nil, err
	}
	list := resp.GetListServicesResponse()
	if list == nil {
		return nil, &ProtocolError{Want: "ListServiceResponse"}
	}
	names := make([]protoreflect.FullName, len(list.GetService()))
	for i, svc := range list.GetService() {
		names[i] = protoreflect.FullName(svc.GetName())
	}
	return names, nil
}

// FileByFilename returns the named file, fetching it and its imports from
// the server if they are not cached.
func (c *Client) FileByFilename(filename string) (protoreflect.FileDescriptor, error) {
	nf := notFound("file", filename)
	if !c.isCached(filename) {
		_, err := c.fetch(&refv1.ServerReflectionRequest{
			MessageRequest: &refv1.ServerReflectionRequest_FileByFilename{FileByFilename: filename},
		})
		if err != nil {
			return nil, asNotFound(err, nf)
		}
		if !c.isCached(filename) {
			return nil, nf(nil)
		}
	}
	fd, err := c.link(filename)
	if err != nil {
		return nil, asNotFound(err, nf)
	}
	return fd, nil
}

// FileContainingSymbol returns the file that declares the given symbol. Enum
// values may be qualified by their enum or named as siblings of it.
func (c *Client) FileContainingSymbol(symbol protoreflect.FullName) (protoreflect.FileDescriptor, error) {
	c.mu.RLock()
	d, err := c.files.FindDescriptorByName(symbol)
	c.mu.RUnlock()
	if err == nil {
		return d.ParentFile(), nil
	}

	nf := notFound("symbol", string(symbol))
	fds, err := c.fetch(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: string(symbol)},
	})
	if err != nil {
		return nil, asNotFound(err, nf)
	}
	// The response lists the declaring file along with its dependencies, in
	// no order that all servers agree on.
	b := symbolmap.NewBuilder()
	b.AddFiles(fds...)
	filename, ok := b.Lookup(string(symbol))
	if !ok {
		return nil, nf(nil)
	}
	fd, err := c.link(filename)
	if err != nil {
		return nil, asNotFound(err, nf)
	}
	return fd, nil
}

// FileContainingExtension returns the file that declares the extension of
// the given message with the given field number.
func (c *Client) FileContainingExtension(extendee protoreflect.FullName, num protoreflect.FieldNumber) (protoreflect.FileDescriptor, error) {
	nf := notFound("extension", fmt.Sprintf("%s(%d)", extendee, num))
	fds, err := c.fetch(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_FileContainingExtension{
			FileContainingExtension: &refv1.ExtensionRequest{
				ContainingType:  string(extendee),
				ExtensionNumber: int32(num),
			},
		},
	})
	if err != nil {
		return nil, asNotFound(err, nf)
	}
	for _, fdp := range fds {
		if !declaresExtension(fdp, extendee, num) {
			continue
		}
		fd, err := c.link(fdp.GetName())
		if err != nil {
			return nil, asNotFound(err, nf)
		}
		return fd, nil
	}
	return nil, nf(nil)
}

func declaresExtension(fd *descriptorpb.FileDescriptorProto, extendee protoreflect.FullName, num protoreflect.FieldNumber) bool {
	want := "." + string(extendee)
	var inMessages func([]*descriptorpb.DescriptorProto) bool
	inFields := func(exts []*descriptorpb.FieldDescriptorProto) bool {
		for _, ext := range exts {
			if ext.GetExtendee() == want && ext.GetNumber() == int32(num) {
				return true
			}
		}
		return false
	}
	inMessages = func(msgs []*descriptorpb.DescriptorProto) bool {
		for _, msg := range msgs {
			if inFields(msg.GetExtension()) || inMessages(msg.GetNestedType()) {
				return true
			}
		}
		return false
	}
	return inFields(fd.GetExtension()) || inMessages(fd.GetMessageType())
}

// AllExtensionNumbersForType returns the numbers of all extensions of the
// given message that the server knows. A server that does not know the
// message yields an empty result.
func (c *Client) AllExtensionNumbersForType(extendee protoreflect.FullName) ([]protoreflect.FieldNumber, error) {
	resp, err := c.send(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_AllExtensionNumbersOfType{
			AllExtensionNumbersOfType: string(extendee),
		},
	})
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	exts := resp.GetAllExtensionNumbersResponse()
	if exts == nil {
		return nil, &ProtocolError{Want: "ExtensionNumberResponse"}
	}
	nums := make([]protoreflect.FieldNumber, len(exts.GetExtensionNumber()))
	for i, n := range exts.GetExtensionNumber() {
		nums[i] = protoreflect.FieldNumber(n)
	}
	return nums, nil
}

// send performs one request. Error responses become status errors.
func (c *Client) send(req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	resp, err := c.conn.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if errResp := resp.GetErrorResponse(); errResp != nil {
		return nil, status.Error(codes.Code(errResp.GetErrorCode()), errResp.GetErrorMessage())
	}
	return resp, nil
}

// fetch performs a request that is answered with file descriptors and adds
// them to the cache. A file that is already cached keeps its first copy,
// which is what fetch returns for it.
func (c *Client) fetch(req *refv1.ServerReflectionRequest) ([]*descriptorpb.FileDescriptorProto, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	fdResp := resp.GetFileDescriptorResponse()
	if fdResp == nil {
		return nil, &ProtocolError{Want: "FileDescriptorResponse"}
	}

	fds := make([]*descriptorpb.FileDescriptorProto, 0, len(fdResp.GetFileDescriptorProto()))
	for _, data := range fdResp.GetFileDescriptorProto() {
		fdp := &descriptorpb.FileDescriptorProto{}
		if err := proto.Unmarshal(data, fdp); err != nil {
			return nil, fmt.Errorf("server sent an invalid file descriptor: %w", err)
		}
		c.mu.Lock()
		if cached, ok := c.protos[fdp.GetName()]; ok {
			fdp = cached
		} else {
			c.protos[fdp.GetName()] = fdp
		}
		c.mu.Unlock()
		fds = append(fds, fdp)
	}
	return fds, nil
}

func (c *Client) isCached(filename string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.protos[filename]
	return ok
}

// link returns the descriptor for a cached file, first resolving its imports.
// Imports that are not cached are fetched, since servers may leave out files
// they sent earlier on the same stream.
func (c *Client) link(filename string) (protoreflect.FileDescriptor, error) {
	c.mu.RLock()
	fd, err := c.files.FindFileByPath(filename)
	fdp := c.protos[filename]
	c.mu.RUnlock()
	if err == nil {
		return fd, nil
	}
	if fdp == nil {
		return nil, &NotFoundError{Kind: "file", Name: filename}
	}

	for _, dep := range fdp.GetDependency() {
		if _, err := c.FileByFilename(dep); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fd, err := c.files.FindFileByPath(filename); err == nil {
		// linked by another goroutine in the meantime
		return fd, nil
	}
	fd, err = protodesc.NewFile(fdp, &c.files)
	if err != nil {
		return nil, err
	}
	if err := c.files.RegisterFile(fd); err != nil {
		return nil, err
	}
	return fd, nil
}

// encodedClosure returns the named file and all of its dependencies, encoded,
// with every file after the ones it imports. The files must be cached, which
// they are once FileByFilename has succeeded for filename.
func (c *Client) encodedClosure(filename string) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res [][]byte
	visited := map[string]bool{}
	var visit func(string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		visited[name] = true
		fdp, ok := c.protos[name]
		if !ok {
			return &NotFoundError{Kind: "file", Name: name}
		}
		for _, dep := range fdp.GetDependency() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		data, err := proto.MarshalOptions{Deterministic: true}.Marshal(fdp)
		if err != nil {
			return err
		}
		res = append(res, data)
		return nil
	}
	if err := visit(filename); err != nil {
		return nil, err
	}
	return res, nil
}
