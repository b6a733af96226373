package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestBaseErrorIsMatchesCodeAndMessage(t *testing.T) {
	sentinel := New(StatusConflict, "supply invariant violated")

	err := fmt.Errorf("apply burn: %w", Conflict("supply invariant violated", errors.New("boom")))
	require.ErrorIs(t, err, sentinel)
	require.ErrorIs(t, err, BaseError{Code: StatusConflict})
	require.NotErrorIs(t, err, New(StatusConflict, "other"))
	require.NotErrorIs(t, err, BaseError{Code: StatusNotFound})
}

func TestHelpersAttachCause(t *testing.T) {
	cause := errors.New("provider offline")
	err := BadGateway("blockchain execution failed", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusBadGateway, StatusOf(err))
	require.Contains(t, err.Error(), "provider offline")
	require.Equal(t, StatusUnknown, StatusOf(errors.New("plain")))
}

func TestDetails(t *testing.T) {
	err := UnprocessableEntity("insufficient balance", nil,
		WithDetails(Detail{Field: "required", Message: "10"}, Detail{Field: "available", Message: "5"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	v, ok := be.Detail("available")
	require.True(t, ok)
	require.Equal(t, "5", v)
	require.Contains(t, be.URL(), "error_code=UNPROCESSABLE_ENTITY")
}

func TestStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusForbidden, StatusForbidden.HTTPStatus())
	require.Equal(t, http.StatusBadGateway, StatusBadGateway.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("x").HTTPStatus())

	st, ok := status.FromError(ToGRPCError(ValidationFailed("bad", nil)))
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())
	require.Nil(t, ToGRPCError(nil))
}

func TestToGRPCErrorCarriesDetails(t *testing.T) {
	err := fmt.Errorf("confirm burn: %w", Conflict("supply invariant violated", nil,
		WithDetails(Detail{Field: "burned_supply", Message: "11"})))

	st, ok := status.FromError(ToGRPCError(err))
	require.True(t, ok)
	require.Equal(t, codes.Aborted, st.Code())
	require.Len(t, st.Details(), 1)

	info, ok := st.Details()[0].(*errdetails.ErrorInfo)
	require.True(t, ok)
	require.Equal(t, "CONFLICT", info.Reason)
	require.Equal(t, "11", info.Metadata["burned_supply"])

	st, _ = status.FromError(ToGRPCError(context.Canceled))
	require.Equal(t, codes.Canceled, st.Code())
	st, _ = status.FromError(ToGRPCError(errors.New("plain")))
	require.Equal(t, codes.Internal, st.Code())
}
