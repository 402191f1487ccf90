// Package testprotos provides file descriptors used as fixtures in tests.
package testprotos

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	TimestampFile = "google/protobuf/timestamp.proto"
	TypesFile     = "helloworld/types.proto"
	GreeterFile   = "helloworld/greeter.proto"
)

// HelloWorld returns three files: helloworld/greeter.proto, which declares
// the helloworld.Greeter service and imports helloworld/types.proto, which in
// turn imports google/protobuf/timestamp.proto. They are returned in reverse
// dependency order, so importers come before the files they import.
func HelloWorld() []*descriptorpb.FileDescriptorProto {
	return []*descriptorpb.FileDescriptorProto{Greeter(), Types(), Timestamp()}
}

// Timestamp returns the descriptor for google/protobuf/timestamp.proto.
func Timestamp() *descriptorpb.FileDescriptorProto {
	return protodesc.ToFileDescriptorProto(timestamppb.File_google_protobuf_timestamp_proto)
}

// Types returns the descriptor for helloworld/types.proto.
func Types() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(TypesFile),
		Package:    proto.String("helloworld"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{TimestampFile},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("HelloRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("name", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
					field("locale", 2, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".helloworld.Locale"),
					field("sent_at", 3, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Timestamp"),
				},
			},
			{
				Name: proto.String("HelloReply"),
				Field: []*descriptorpb.FieldDescriptorProto{
					oneofField(field("message", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""), 0),
					oneofField(field("emoji", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""), 0),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{
					{Name: proto.String("greeting")},
				},
			},
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{
			{
				Name: proto.String("Locale"),
				Value: []*descriptorpb.EnumValueDescriptorProto{
					{Name: proto.String("LOCALE_UNSPECIFIED"), Number: proto.Int32(0)},
					{Name: proto.String("LOCALE_EN"), Number: proto.Int32(1)},
				},
			},
		},
	}
}

// Greeter returns the descriptor for helloworld/greeter.proto.
func Greeter() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(GreeterFile),
		Package:    proto.String("helloworld"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{TypesFile},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("Greeter"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("SayHello"),
						InputType:  proto.String(".helloworld.HelloRequest"),
						OutputType: proto.String(".helloworld.HelloReply"),
					},
					{
						Name:            proto.String("SayHelloStream"),
						InputType:       proto.String(".helloworld.HelloRequest"),
						OutputType:      proto.String(".helloworld.HelloReply"),
						ClientStreaming: proto.Bool(true),
						ServerStreaming: proto.Bool(true),
					},
				},
			},
		},
	}
}

// Registry returns a registry that contains the HelloWorld files.
func Registry() (*protoregistry.Files, error) {
	return protodesc.NewFiles(&descriptorpb.FileDescriptorSet{File: HelloWorld()})
}

func field(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	fld := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
		JsonName: proto.String(jsonName(name)),
	}
	if typeName != "" {
		fld.TypeName = proto.String(typeName)
	}
	return fld
}

func oneofField(fld *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	fld.OneofIndex = proto.Int32(index)
	return fld
}

func jsonName(name string) string {
	var b []byte
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		b = append(b, c)
	}
	return string(b)
}
