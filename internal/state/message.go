package state

import (
	"context"
	"errors"

	"github.com/BuzzLyutic/gotask/internal/client"
	"github.com/BuzzLyutic/gotask/internal/model"
)

// UserMessage turns an error from the store into the short text shown in a
// dismissable notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var reason string
	switch {
	case errors.Is(err, ErrBusy):
		return "That task is still being saved. Try again in a moment."
	case errors.Is(err, ErrInvalidMode):
		return "Finish or cancel the open form first."
	case errors.Is(err, ErrUnknownTask):
		return "That task is not in the list. Reload and try again."
	case errors.Is(err, model.ErrValidation):
		var ve *model.ValidationError
		if errors.As(err, &ve) && len(ve.Fields) > 0 {
			return "Please fix the form: " + ve.Fields[0].Error()
		}
		return "Please fix the form."
	case errors.Is(err, client.ErrNotFound):
		reason = "the task no longer exists on the server"
	case errors.Is(err, client.ErrNetworkUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		reason = "the task server could not be reached"
	case errors.Is(err, client.ErrDecodeFailed):
		reason = "the task server sent an unexpected response"
	case errors.Is(err, client.ErrRequestFailed):
		reason = "the task server rejected the request"
	default:
		return err.Error()
	}

	var cerr *client.Error
	if errors.As(err, &cerr) {
		return "Could not " + cerr.Op + ": " + reason + "."
	}
	return "Request failed: " + reason + "."
}
