package grpcreflect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/reflectserver/descmap"
	"github.com/jhump/reflectserver/grpcreflect"
	"github.com/jhump/reflectserver/internal/testprotos"
)

func newHandler(t *testing.T) *grpcreflect.Handler {
	t.Helper()
	m, err := descmap.FromFiles(context.Background(), testprotos.HelloWorld())
	require.NoError(t, err)
	return grpcreflect.NewHandler(m.Services(), m)
}

func fileNames(t *testing.T, resp *refv1.ServerReflectionResponse) []string {
	t.Helper()
	fdResp := resp.GetFileDescriptorResponse()
	require.NotNil(t, fdResp, "expected file descriptor response, got %v", resp.GetMessageResponse())
	names := make([]string, len(fdResp.GetFileDescriptorProto()))
	for i, data := range fdResp.GetFileDescriptorProto() {
		var fd descriptorpb.FileDescriptorProto
		require.NoError(t, proto.Unmarshal(data, &fd))
		names[i] = fd.GetName()
	}
	return names
}

func requireErrorResponse(t *testing.T, resp *refv1.ServerReflectionResponse, code codes.Code, msg string) {
	t.Helper()
	errResp := resp.GetErrorResponse()
	require.NotNil(t, errResp, "expected error response, got %v", resp.GetMessageResponse())
	assert.Equal(t, int32(code), errResp.GetErrorCode())
	assert.Equal(t, msg, errResp.GetErrorMessage())
}

func TestHandler_ListServices(t *testing.T) {
	h := newHandler(t)
	for _, host := range []string{"", "*", "example.com"} {
		svcs := h.ListServices(host).GetListServicesResponse().GetService()
		require.Len(t, svcs, 1)
		assert.Equal(t, "helloworld.Greeter", svcs[0].GetName())
	}
}

func TestHandler_ListServicesSorted(t *testing.T) {
	services := []string{"foo.Zed", "bar.Alpha", "foo.Bar"}
	h := grpcreflect.NewHandler(services, staticSource{})
	var names []string
	for _, svc := range h.ListServices("").GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	assert.Equal(t, []string{"bar.Alpha", "foo.Bar", "foo.Zed"}, names)
	// the caller's slice is left alone
	assert.Equal(t, []string{"foo.Zed", "bar.Alpha", "foo.Bar"}, services)
}

func TestHandler_FileContainingSymbol(t *testing.T) {
	h := newHandler(t)
	resp := h.FileContainingSymbol("helloworld.Greeter.SayHello")
	assert.Equal(t, []string{testprotos.TimestampFile, testprotos.TypesFile, testprotos.GreeterFile}, fileNames(t, resp))

	resp = h.FileContainingSymbol("helloworld.Locale.LOCALE_EN")
	assert.Equal(t, []string{testprotos.TimestampFile, testprotos.TypesFile}, fileNames(t, resp))

	requireErrorResponse(t, h.FileContainingSymbol("helloworld.Nope"), codes.NotFound, "symbol not found: helloworld.Nope")
}

func TestHandler_FileByFilename(t *testing.T) {
	h := newHandler(t)
	resp := h.FileByFilename(testprotos.TypesFile)
	assert.Equal(t, []string{testprotos.TimestampFile, testprotos.TypesFile}, fileNames(t, resp))

	requireErrorResponse(t, h.FileByFilename("nope.proto"), codes.NotFound, "file not found: nope.proto")
}

func TestHandler_ExtensionsNotSupported(t *testing.T) {
	h := newHandler(t)
	for _, resp := range []*refv1.ServerReflectionResponse{
		h.FileContainingExtension("helloworld.HelloRequest", 100),
		h.FileContainingExtension("", 0),
		h.ExtensionNumbersOfType("helloworld.HelloRequest"),
		h.ExtensionNumbersOfType("google.protobuf.FileOptions"),
	} {
		requireErrorResponse(t, resp, codes.Unimplemented, "extensions not supported")
		assert.Equal(t, int32(12), resp.GetErrorResponse().GetErrorCode())
	}
}

func TestHandler_Handle(t *testing.T) {
	h := newHandler(t)

	req := &refv1.ServerReflectionRequest{
		Host: "localhost",
		MessageRequest: &refv1.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: "helloworld.HelloReply",
		},
	}
	resp, err := h.Handle(req)
	require.NoError(t, err)
	assert.Equal(t, "localhost", resp.GetValidHost())
	assert.True(t, proto.Equal(req, resp.GetOriginalRequest()))
	assert.Equal(t, []string{testprotos.TimestampFile, testprotos.TypesFile}, fileNames(t, resp))

	resp, err = h.Handle(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_FileContainingExtension{
			FileContainingExtension: &refv1.ExtensionRequest{ContainingType: "helloworld.HelloRequest", ExtensionNumber: 1},
		},
	})
	require.NoError(t, err)
	requireErrorResponse(t, resp, codes.Unimplemented, "extensions not supported")

	resp, err = h.Handle(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_AllExtensionNumbersOfType{AllExtensionNumbersOfType: "helloworld.HelloRequest"},
	})
	require.NoError(t, err)
	requireErrorResponse(t, resp, codes.Unimplemented, "extensions not supported")

	resp, err = h.Handle(&refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_ListServices{ListServices: "*"},
	})
	require.NoError(t, err)
	require.Len(t, resp.GetListServicesResponse().GetService(), 1)

	_, err = h.Handle(&refv1.ServerReflectionRequest{Host: "localhost"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

type staticSource map[string][][]byte

func (s staticSource) BySymbol(symbol string) [][]byte     { return s["sym:"+symbol] }
func (s staticSource) ByFilename(filename string) [][]byte { return s["file:"+filename] }

func TestHandler_CustomSource(t *testing.T) {
	src := staticSource{
		"sym:foo.Bar":    {[]byte("a"), []byte("b")},
		"file:foo.proto": {[]byte("b")},
	}
	h := grpcreflect.NewHandler([]string{"foo.Baz", "foo.Qux"}, src)

	fdResp := h.FileContainingSymbol("foo.Bar").GetFileDescriptorResponse()
	require.NotNil(t, fdResp)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, fdResp.GetFileDescriptorProto())

	fdResp = h.FileByFilename("foo.proto").GetFileDescriptorResponse()
	require.NotNil(t, fdResp)
	assert.Equal(t, [][]byte{[]byte("b")}, fdResp.GetFileDescriptorProto())

	svcs := h.ListServices("").GetListServicesResponse().GetService()
	require.Len(t, svcs, 2)
	assert.Equal(t, "foo.Baz", svcs[0].GetName())
	assert.Equal(t, "foo.Qux", svcs[1].GetName())
}
