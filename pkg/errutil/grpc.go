package errutil

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode maps the code to the gRPC code used by the error interceptor.
// Conflicts become Aborted since they come from lost status or supply races
// that a caller may retry.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusNotFound:
		return codes.NotFound
	case StatusTimeout, StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case StatusUnsupportedMediaType, StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusConflict:
		return codes.Aborted
	case StatusTooManyRequests:
		return codes.ResourceExhausted
	case StatusClientClosedRequest:
		return codes.Canceled
	case StatusNotImplemented:
		return codes.Unimplemented
	case StatusBadGateway, StatusServiceUnavailable:
		return codes.Unavailable
	case StatusInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// ToGRPCError converts err to a gRPC status error. BaseError details are
// carried as an ErrorInfo with one metadata entry per field.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if !errors.As(err, &base) {
		return status.Error(codes.Internal, err.Error())
	}

	st := status.New(base.Code.GRPCCode(), base.messageWithErr())
	if len(base.Details) == 0 {
		return st.Err()
	}

	info := &errdetails.ErrorInfo{
		Reason:   string(base.Code),
		Metadata: make(map[string]string, len(base.Details)),
	}
	for _, d := range base.Details {
		info.Metadata[d.Field] = d.Message
	}
	if withDetails, err := st.WithDetails(info); err == nil {
		st = withDetails
	}
	return st.Err()
}
