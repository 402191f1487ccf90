package grpcreflect

import (
	"fmt"
	"sort"

	"google.golang.org/grpc/codes"
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
)

const extensionsNotSupported = "extensions not supported"

// Handler answers server reflection requests. It holds no state other than
// its source and list of services, both of which are fixed when it is created,
// so a single Handler can serve any number of concurrent streams.
type Handler struct {
	services []*refv1.ServiceResponse
	source   DescriptorSource
}

// NewHandler creates a handler that reports the given services, in sorted
// order, and gets file descriptors from the given source.
func NewHandler(services []string, source DescriptorSource) *Handler {
	sorted := append([]string(nil), services...)
	sort.Strings(sorted)
	resp := make([]*refv1.ServiceResponse, len(sorted))
	for i, svc := range sorted {
		resp[i] = &refv1.ServiceResponse{Name: svc}
	}
	return &Handler{services: resp, source: source}
}

// Handle produces the response to a single reflection request. It returns an
// error only if the request does not contain a known kind of query; failures
// to answer a known query are reported via an error response instead.
func (h *Handler) Handle(req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	var out *refv1.ServerReflectionResponse
	switch mr := req.GetMessageRequest().(type) {
	case *refv1.ServerReflectionRequest_FileByFilename:
		out = h.FileByFilename(mr.FileByFilename)
	case *refv1.ServerReflectionRequest_FileContainingSymbol:
		out = h.FileContainingSymbol(mr.FileContainingSymbol)
	case *refv1.ServerReflectionRequest_FileContainingExtension:
		ext := mr.FileContainingExtension
		out = h.FileContainingExtension(ext.GetContainingType(), ext.GetExtensionNumber())
	case *refv1.ServerReflectionRequest_AllExtensionNumbersOfType:
		out = h.ExtensionNumbersOfType(mr.AllExtensionNumbersOfType)
	case *refv1.ServerReflectionRequest_ListServices:
		out = h.ListServices(mr.ListServices)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "invalid MessageRequest: %v", req.GetMessageRequest())
	}
	out.ValidHost = req.GetHost()
	out.OriginalRequest = req
	return out, nil
}

// ListServices returns the names of all services. The host is ignored: the
// same services are reported for any host.
func (h *Handler) ListServices(_ string) *refv1.ServerReflectionResponse {
	return &refv1.ServerReflectionResponse{
		MessageResponse: &refv1.ServerReflectionResponse_ListServicesResponse{
			ListServicesResponse: &refv1.ListServiceResponse{Service: h.services},
		},
	}
}

// FileContainingSymbol returns the file that declares the given symbol and
// all of its dependencies. If the symbol is not known, the response is an
// error with code NOT_FOUND.
func (h *Handler) FileContainingSymbol(symbol string) *refv1.ServerReflectionResponse {
	files := h.source.BySymbol(symbol)
	if len(files) == 0 {
		return errorResponse(codes.NotFound, fmt.Sprintf("symbol not found: %s", symbol))
	}
	return fileDescriptorResponse(files)
}

// FileByFilename returns the file with the given name and all of its
// dependencies. If the file is not known, the response is an error with code
// NOT_FOUND.
func (h *Handler) FileByFilename(filename string) *refv1.ServerReflectionResponse {
	files := h.source.ByFilename(filename)
	if len(files) == 0 {
		return errorResponse(codes.NotFound, fmt.Sprintf("file not found: %s", filename))
	}
	return fileDescriptorResponse(files)
}

// FileContainingExtension always returns an UNIMPLEMENTED error response.
func (h *Handler) FileContainingExtension(_ string, _ int32) *refv1.ServerReflectionResponse {
	return errorResponse(codes.Unimplemented, extensionsNotSupported)
}

// ExtensionNumbersOfType always returns an UNIMPLEMENTED error response.
func (h *Handler) ExtensionNumbersOfType(_ string) *refv1.ServerReflectionResponse {
	return errorResponse(codes.Unimplemented, extensionsNotSupported)
}

func fileDescriptorResponse(files [][]byte) *refv1.ServerReflectionResponse {
	return &refv1.ServerReflectionResponse{
		MessageResponse: &refv1.ServerReflectionResponse_FileDescriptorResponse{
			FileDescriptorResponse: &refv1.FileDescriptorResponse{FileDescriptorProto: files},
		},
	}
}

func errorResponse(code codes.Code, msg string) *refv1.ServerReflectionResponse {
	return &refv1.ServerReflectionResponse{
		MessageResponse: &refv1.ServerReflectionResponse_ErrorResponse{
			ErrorResponse: &refv1.ErrorResponse{
				ErrorCode:    int32(code),
				ErrorMessage: msg,
			},
		},
	}
}
