package grpcreflect

import (
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	refv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

// The v1 and v1alpha versions of the reflection protocol have identical
// messages; only the package name differs. These functions copy between them.

func toV1Request(v1alpha *refv1alpha.ServerReflectionRequest) *refv1.ServerReflectionRequest {
	if v1alpha == nil {
		return nil
	}
	var v1 refv1.ServerReflectionRequest
	v1.Host = v1alpha.Host
	switch mr := v1alpha.MessageRequest.(type) {
	case *refv1alpha.ServerReflectionRequest_FileByFilename:
		v1.MessageRequest = &refv1.ServerReflectionRequest_FileByFilename{
			FileByFilename: mr.FileByFilename,
		}
	case *refv1alpha.ServerReflectionRequest_FileContainingSymbol:
		v1.MessageRequest = &refv1.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: mr.FileContainingSymbol,
		}
	case *refv1alpha.ServerReflectionRequest_FileContainingExtension:
		if mr.FileContainingExtension != nil {
			v1.MessageRequest = &refv1.ServerReflectionRequest_FileContainingExtension{
				FileContainingExtension: &refv1.ExtensionRequest{
					ContainingType:  mr.FileContainingExtension.GetContainingType(),
					ExtensionNumber: mr.FileContainingExtension.GetExtensionNumber(),
				},
			}
		}
	case *refv1alpha.ServerReflectionRequest_AllExtensionNumbersOfType:
		v1.MessageRequest = &refv1.ServerReflectionRequest_AllExtensionNumbersOfType{
			AllExtensionNumbersOfType: mr.AllExtensionNumbersOfType,
		}
	case *refv1alpha.ServerReflectionRequest_ListServices:
		v1.MessageRequest = &refv1.ServerReflectionRequest_ListServices{
			ListServices: mr.ListServices,
		}
	}
	return &v1
}

func toV1AlphaRequest(v1 *refv1.ServerReflectionRequest) *refv1alpha.ServerReflectionRequest {
	if v1 == nil {
		return nil
	}
	var v1alpha refv1alpha.ServerReflectionRequest
	v1alpha.Host = v1.Host
	switch mr := v1.MessageRequest.(type) {
	case *refv1.ServerReflectionRequest_FileByFilename:
		v1alpha.MessageRequest = &refv1alpha.ServerReflectionRequest_FileByFilename{
			FileByFilename: mr.FileByFilename,
		}
	case *refv1.ServerReflectionRequest_FileContainingSymbol:
		v1alpha.MessageRequest = &refv1alpha.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: mr.FileContainingSymbol,
		}
	case *refv1.ServerReflectionRequest_FileContainingExtension:
		if mr.FileContainingExtension != nil {
			v1alpha.MessageRequest = &refv1alpha.ServerReflectionRequest_FileContainingExtension{
				FileContainingExtension: &refv1alpha.ExtensionRequest{
					ContainingType:  mr.FileContainingExtension.GetContainingType(),
					ExtensionNumber: mr.FileContainingExtension.GetExtensionNumber(),
				},
			}
		}
	case *refv1.ServerReflectionRequest_AllExtensionNumbersOfType:
		v1alpha.MessageRequest = &refv1alpha.ServerReflectionRequest_AllExtensionNumbersOfType{
			AllExtensionNumbersOfType: mr.AllExtensionNumbersOfType,
		}
	case *refv1.ServerReflectionRequest_ListServices:
		v1alpha.MessageRequest = &refv1alpha.ServerReflectionRequest_ListServices{
			ListServices: mr.ListServices,
		}
	}
	return &v1alpha
}

func toV1Response(v1alpha *refv1alpha.ServerReflectionResponse) *refv1.ServerReflectionResponse {
	if v1alpha == nil {
		return nil
	}
	var v1 refv1.ServerReflectionResponse
	v1.ValidHost = v1alpha.ValidHost
	v1.OriginalRequest = toV1Request(v1alpha.OriginalRequest)
	switch mr := v1alpha.MessageResponse.(type) {
	case *refv1alpha.ServerReflectionResponse_FileDescriptorResponse:
		if mr.FileDescriptorResponse != nil {
			v1.MessageResponse = &refv1.ServerReflectionResponse_FileDescriptorResponse{
				FileDescriptorResponse: &refv1.FileDescriptorResponse{
					FileDescriptorProto: mr.FileDescriptorResponse.GetFileDescriptorProto(),
				},
			}
		}
	case *refv1alpha.ServerReflectionResponse_AllExtensionNumbersResponse:
		if mr.AllExtensionNumbersResponse != nil {
			v1.MessageResponse = &refv1.ServerReflectionResponse_AllExtensionNumbersResponse{
				AllExtensionNumbersResponse: &refv1.ExtensionNumberResponse{
					BaseTypeName:    mr.AllExtensionNumbersResponse.GetBaseTypeName(),
					ExtensionNumber: mr.AllExtensionNumbersResponse.GetExtensionNumber(),
				},
			}
		}
	case *refv1alpha.ServerReflectionResponse_ListServicesResponse:
		if mr.ListServicesResponse != nil {
			svcs := make([]*refv1.ServiceResponse, len(mr.ListServicesResponse.GetService()))
			for i, svc := range mr.ListServicesResponse.GetService() {
				svcs[i] = &refv1.ServiceResponse{Name: svc.GetName()}
			}
			v1.MessageResponse = &refv1.ServerReflectionResponse_ListServicesResponse{
				ListServicesResponse: &refv1.ListServiceResponse{Service: svcs},
			}
		}
	case *refv1alpha.ServerReflectionResponse_ErrorResponse:
		if mr.ErrorResponse != nil {
			v1.MessageResponse = &refv1.ServerReflectionResponse_ErrorResponse{
				ErrorResponse: &refv1.ErrorResponse{
					ErrorCode:    mr.ErrorResponse.GetErrorCode(),
					ErrorMessage: mr.ErrorResponse.GetErrorMessage(),
				},
			}
		}
	}
	return &v1
}

func toV1AlphaResponse(v1 *refv1.ServerReflectionResponse) *refv1alpha.ServerReflectionResponse {
	if v1 == nil {
		return nil
	}
	var v1alpha refv1alpha.ServerReflectionResponse
	v1alpha.ValidHost = v1.ValidHost
	v1alpha.OriginalRequest = toV1AlphaRequest(v1.OriginalRequest)
	switch mr := v1.MessageResponse.(type) {
	case *refv1.ServerReflectionResponse_FileDescriptorResponse:
		if mr.FileDescriptorResponse != nil {
			v1alpha.MessageResponse = &refv1alpha.ServerReflectionResponse_FileDescriptorResponse{
				FileDescriptorResponse: &refv1alpha.FileDescriptorResponse{
					FileDescriptorProto: mr.FileDescriptorResponse.GetFileDescriptorProto(),
				},
			}
		}
	case *refv1.ServerReflectionResponse_AllExtensionNumbersResponse:
		if mr.AllExtensionNumbersResponse != nil {
			v1alpha.MessageResponse = &refv1alpha.ServerReflectionResponse_AllExtensionNumbersResponse{
				AllExtensionNumbersResponse: &refv1alpha.ExtensionNumberResponse{
					BaseTypeName:    mr.AllExtensionNumbersResponse.GetBaseTypeName(),
					ExtensionNumber: mr.AllExtensionNumbersResponse.GetExtensionNumber(),
				},
			}
		}
	case *refv1.ServerReflectionResponse_ListServicesResponse:
		if mr.ListServicesResponse != nil {
			svcs := make([]*refv1alpha.ServiceResponse, len(mr.ListServicesResponse.GetService()))
			for i, svc := range mr.ListServicesResponse.GetService() {
				svcs[i] = &refv1alpha.ServiceResponse{Name: svc.GetName()}
			}
			v1alpha.MessageResponse = &refv1alpha.ServerReflectionResponse_ListServicesResponse{
				ListServicesResponse: &refv1alpha.ListServiceResponse{Service: svcs},
			}
		}
	case *refv1.ServerReflectionResponse_ErrorResponse:
		if mr.ErrorResponse != nil {
			v1alpha.MessageResponse = &refv1alpha.ServerReflectionResponse_ErrorResponse{
				ErrorResponse: &refv1alpha.ErrorResponse{
					ErrorCode:    mr.ErrorResponse.GetErrorCode(),
					ErrorMessage: mr.ErrorResponse.GetErrorMessage(),
				},
			}
		}
	}
	return &v1alpha
}

// adaptStreamFromV1Alpha lets the client use a v1alpha stream as if it were
// a v1 stream.
type adaptStreamFromV1Alpha struct {
	refv1alpha.ServerReflection_ServerReflectionInfoClient
}

func (a adaptStreamFromV1Alpha) Send(req *refv1.ServerReflectionRequest) error {
	return a.ServerReflection_ServerReflectionInfoClient.Send(toV1AlphaRequest(req))
}

func (a adaptStreamFromV1Alpha) Recv() (*refv1.ServerReflectionResponse, error) {
	resp, err := a.ServerReflection_ServerReflectionInfoClient.Recv()
	if err != nil {
		return nil, err
	}
	return toV1Response(resp), nil
}
