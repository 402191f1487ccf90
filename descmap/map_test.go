package descmap_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/reflectserver/descmap"
	"github.com/jhump/reflectserver/internal/testprotos"
	"github.com/jhump/reflectserver/symbolmap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadHelloWorld(t *testing.T) *descmap.Map {
	t.Helper()
	m, err := descmap.FromFiles(context.Background(), testprotos.HelloWorld())
	require.NoError(t, err)
	return m
}

func decodeNames(t *testing.T, encoded [][]byte) []string {
	t.Helper()
	names := make([]string, len(encoded))
	for i, data := range encoded {
		var fd descriptorpb.FileDescriptorProto
		require.NoError(t, proto.Unmarshal(data, &fd))
		names[i] = fd.GetName()
	}
	return names
}

func TestBySymbol_DependenciesFirst(t *testing.T) {
	m := loadHelloWorld(t)

	want := []string{testprotos.TimestampFile, testprotos.TypesFile, testprotos.GreeterFile}
	for _, sym := range []string{"helloworld.Greeter", "helloworld.Greeter.SayHello", "helloworld.Greeter.SayHelloStream"} {
		assert.Equal(t, want, decodeNames(t, m.BySymbol(sym)), sym)
	}

	want = []string{testprotos.TimestampFile, testprotos.TypesFile}
	for _, sym := range []string{
		"helloworld.HelloRequest",
		"helloworld.HelloRequest.sent_at",
		"helloworld.HelloReply.greeting",
		"helloworld.Locale",
		"helloworld.Locale.LOCALE_EN",
	} {
		assert.Equal(t, want, decodeNames(t, m.BySymbol(sym)), sym)
	}

	assert.Equal(t, []string{testprotos.TimestampFile}, decodeNames(t, m.BySymbol("google.protobuf.Timestamp.seconds")))
}

func TestByFilename(t *testing.T) {
	m := loadHelloWorld(t)

	encoded := m.ByFilename(testprotos.GreeterFile)
	require.Len(t, encoded, 3)
	wantFiles := []*descriptorpb.FileDescriptorProto{testprotos.Timestamp(), testprotos.Types(), testprotos.Greeter()}
	for i, data := range encoded {
		var fd descriptorpb.FileDescriptorProto
		require.NoError(t, proto.Unmarshal(data, &fd))
		if diff := cmp.Diff(wantFiles[i], &fd, protocmp.Transform()); diff != "" {
			t.Errorf("file %d differs (-want +got):\n%s", i, diff)
		}
	}

	assert.Equal(t, []string{testprotos.TimestampFile}, decodeNames(t, m.ByFilename(testprotos.TimestampFile)))
}

func TestUnknownKeysAreEmpty(t *testing.T) {
	m := loadHelloWorld(t)
	assert.Empty(t, m.BySymbol("helloworld.Nope"))
	assert.Empty(t, m.BySymbol(""))
	assert.Empty(t, m.BySymbol("zzz"))
	assert.Empty(t, m.ByFilename("nope.proto"))
	assert.Empty(t, m.ByFilename(""))
}

func TestServicesAndFiles(t *testing.T) {
	m := loadHelloWorld(t)
	assert.Equal(t, []string{"helloworld.Greeter"}, m.Services())
	assert.Equal(t, []string{testprotos.TimestampFile, testprotos.GreeterFile, testprotos.TypesFile}, m.Files())

	sm := symbolmap.NewBuilder()
	sm.AddFiles(testprotos.HelloWorld()...)
	built, err := sm.Build()
	require.NoError(t, err)
	assert.Equal(t, built.Len(), m.NumSymbols())
}

func TestSharedDependencyAppearsOnce(t *testing.T) {
	base := &descriptorpb.FileDescriptorProto{
		Name:        proto.String("base.proto"),
		MessageType: []*descriptorpb.DescriptorProto{{Name: proto.String("Base")}},
	}
	left := &descriptorpb.FileDescriptorProto{
		Name:        proto.String("left.proto"),
		Dependency:  []string{"base.proto"},
		MessageType: []*descriptorpb.DescriptorProto{{Name: proto.String("Left")}},
	}
	right := &descriptorpb.FileDescriptorProto{
		Name:        proto.String("right.proto"),
		Dependency:  []string{"base.proto"},
		MessageType: []*descriptorpb.DescriptorProto{{Name: proto.String("Right")}},
	}
	top := &descriptorpb.FileDescriptorProto{
		Name:        proto.String("top.proto"),
		Dependency:  []string{"right.proto", "left.proto"},
		MessageType: []*descriptorpb.DescriptorProto{{Name: proto.String("Top")}},
	}
	m, err := descmap.FromFiles(context.Background(), []*descriptorpb.FileDescriptorProto{top, left, right, base})
	require.NoError(t, err)
	assert.Equal(t, []string{"base.proto", "right.proto", "left.proto", "top.proto"}, decodeNames(t, m.BySymbol("Top")))
	assert.Equal(t, []string{"base.proto", "left.proto"}, decodeNames(t, m.BySymbol("Left")))
}

func TestMarshal_Deterministic(t *testing.T) {
	ctx := context.Background()
	files := testprotos.HelloWorld()
	first, err := descmap.Marshal(ctx, files)
	require.NoError(t, err)

	reversed := []*descriptorpb.FileDescriptorProto{files[2], files[1], files[0], files[1]}
	second, err := descmap.Marshal(ctx, reversed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	var buf bytes.Buffer
	require.NoError(t, descmap.Write(ctx, &buf, files))
	assert.True(t, bytes.Equal(first, buf.Bytes()))
}

func TestMarshal_MissingDependency(t *testing.T) {
	_, err := descmap.Marshal(context.Background(), []*descriptorpb.FileDescriptorProto{testprotos.Greeter(), testprotos.Types()})
	var missing *symbolmap.MissingDependencyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, testprotos.TimestampFile, missing.Dependency)
}

func TestMarshal_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := descmap.Marshal(ctx, testprotos.HelloWorld())
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoad_Empty(t *testing.T) {
	m, err := descmap.Load(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Files())
	assert.Empty(t, m.Services())
	assert.Nil(t, m.ByFilename("foo.proto"))
}

func TestLoad_Corrupt(t *testing.T) {
	data, err := descmap.Marshal(context.Background(), testprotos.HelloWorld())
	require.NoError(t, err)

	testCases := map[string][]byte{
		"truncated":   data[:len(data)-1],
		"bad tag":     {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		"short blob":  appendBlob(data, []byte("abc")),
		"bad symbols": append(append([]byte(nil), data...), symbolEntry("aaa", 0)...),
		"wide index":  append(append([]byte(nil), data...), symbolEntry("zzz", 1<<32)...),
	}
	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := descmap.Load(input)
			require.ErrorIs(t, err, descmap.ErrCorrupt)
		})
	}
}

func TestLoad_FileIndexBounds(t *testing.T) {
	data, err := descmap.Marshal(context.Background(), testprotos.HelloWorld())
	require.NoError(t, err)

	// an index that fits is accepted and resolves to that file
	m, err := descmap.Load(append(append([]byte(nil), data...), symbolEntry("zzz", 0)...))
	require.NoError(t, err)
	assert.Equal(t, []string{m.Files()[0]}, decodeNames(t, m.BySymbol("zzz")))

	// the same entry with bits above 32 must not wrap around to file 0
	_, err = descmap.Load(append(append([]byte(nil), data...), symbolEntry("zzz", 1<<32)...))
	require.ErrorIs(t, err, descmap.ErrCorrupt)
	assert.ErrorContains(t, err, "file index out of range")
}

func TestConcurrentReaders(t *testing.T) {
	m := loadHelloWorld(t)
	want := decodeNames(t, m.BySymbol("helloworld.Greeter.SayHello"))

	var grp errgroup.Group
	for i := 0; i < 32; i++ {
		grp.Go(func() error {
			for j := 0; j < 100; j++ {
				res := m.BySymbol("helloworld.Greeter.SayHello")
				if len(res) != len(want) {
					return fmt.Errorf("expected %d files, got %d", len(want), len(res))
				}
				if len(m.ByFilename(testprotos.TypesFile)) != 2 {
					return fmt.Errorf("expected 2 files for %s", testprotos.TypesFile)
				}
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())
}

func TestReturnedSlicesAreClipped(t *testing.T) {
	m := loadHelloWorld(t)
	for _, data := range m.ByFilename(testprotos.GreeterFile) {
		assert.Equal(t, len(data), cap(data))
	}
}

// appendBlob appends another value for the blob field, which replaces the
// original one when decoding.
func appendBlob(data, blob []byte) []byte {
	res := append([]byte(nil), data...)
	res = protowire.AppendTag(res, 4, protowire.BytesType)
	return protowire.AppendBytes(res, blob)
}

func symbolEntry(name string, file uint64) []byte {
	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.BytesType)
	entry = protowire.AppendString(entry, name)
	entry = protowire.AppendTag(entry, 2, protowire.VarintType)
	entry = protowire.AppendVarint(entry, file)

	var res []byte
	res = protowire.AppendTag(res, 2, protowire.BytesType)
	return protowire.AppendBytes(res, entry)
}
