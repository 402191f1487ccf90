package grpcreflect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/reflectserver/grpcreflect"
	"github.com/jhump/reflectserver/internal/testprotos"
)

func names(t *testing.T, encoded [][]byte) []string {
	t.Helper()
	res := make([]string, len(encoded))
	for i, data := range encoded {
		var fd descriptorpb.FileDescriptorProto
		require.NoError(t, proto.Unmarshal(data, &fd))
		res[i] = fd.GetName()
	}
	return res
}

func TestFilesSource(t *testing.T) {
	files, err := testprotos.Registry()
	require.NoError(t, err)
	src := grpcreflect.NewFilesSource(files)

	all := []string{testprotos.TimestampFile, testprotos.TypesFile, testprotos.GreeterFile}
	assert.Equal(t, all, names(t, src.ByFilename(testprotos.GreeterFile)))
	assert.Equal(t, all, names(t, src.BySymbol("helloworld.Greeter")))
	assert.Equal(t, all, names(t, src.BySymbol("helloworld.Greeter.SayHelloStream")))
	assert.Equal(t, all[:2], names(t, src.BySymbol("helloworld.HelloReply.greeting")))
	assert.Equal(t, all[:2], names(t, src.BySymbol("helloworld.HelloRequest.locale")))
	// enum values, both the way protobuf scopes them and qualified by the enum
	assert.Equal(t, all[:2], names(t, src.BySymbol("helloworld.LOCALE_EN")))
	assert.Equal(t, all[:2], names(t, src.BySymbol("helloworld.Locale.LOCALE_EN")))

	assert.Empty(t, src.BySymbol("helloworld.Locale.LOCALE_FR"))
	assert.Empty(t, src.BySymbol("helloworld.HelloRequest.name.bogus"))
	assert.Empty(t, src.BySymbol("nope"))
	assert.Empty(t, src.ByFilename("nope.proto"))
}

func TestFilesSource_GlobalFiles(t *testing.T) {
	s := grpc.NewServer()
	grpcreflect.Register(s, grpcreflect.NewServer(grpcreflect.NewHandler(nil, grpcreflect.NewFilesSource(protoregistry.GlobalFiles))))

	services := grpcreflect.ServiceNames(s)
	assert.Equal(t, []string{"grpc.reflection.v1.ServerReflection", "grpc.reflection.v1alpha.ServerReflection"}, services)

	src := grpcreflect.NewFilesSource(protoregistry.GlobalFiles)
	assert.Equal(t, []string{"grpc/reflection/v1/reflection.proto"}, names(t, src.BySymbol(services[0])))
	assert.Equal(t, []string{"grpc/reflection/v1alpha/reflection.proto"}, names(t, src.ByFilename("grpc/reflection/v1alpha/reflection.proto")))
}
