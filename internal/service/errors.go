package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"

	"github.com/mmynk/referralnet/internal/calculator"
	"github.com/mmynk/referralnet/internal/rewards"
	"github.com/mmynk/referralnet/internal/storage"
)

var validate = validator.New()

// validateRequest checks a request message's struct tags.
func validateRequest(msg any) error {
	if err := validate.Struct(msg); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

// toConnectError maps engine and storage errors onto Connect codes.
func toConnectError(err error) *connect.Error {
	var (
		timeout   *calculator.TraversalTimeoutError
		integrity *calculator.TreeIntegrityError
		ratio     *calculator.InvalidRatioConfigError
	)
	switch {
	case errors.As(err, &timeout):
		if errors.Is(err, context.Canceled) {
			return connect.NewError(connect.CodeCanceled, err)
		}
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.As(err, &integrity), errors.As(err, &ratio), errors.Is(err, calculator.ErrInvalidAmount):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, rewards.ErrProgramNotFound),
		errors.Is(err, rewards.ErrUserNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, rewards.ErrProgramInactive):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
