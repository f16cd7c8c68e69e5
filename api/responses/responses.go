package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = encode(w, status, types.Envelope[any]{Data: data})
}

// WriteError renders err as an error envelope. Typed errors keep their code,
// reason and, for client errors, their message; anything else becomes a
// generic INTERNAL_ERROR. 5xx are logged at error level with the full chain,
// 4xx at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("nil error written as response")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	clientFault := meta.HTTPStatus < http.StatusInternalServerError

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Reason:    string(pkgerrors.ReasonOf(err)),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
	}
	if clientFault && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		logCtx = logg.WithField(logCtx, "status", meta.HTTPStatus)
		if clientFault {
			logg.Warn(logCtx, "request.rejected")
		} else {
			logg.Error(logCtx, "request.error", err)
		}
	}

	if encErr := encode(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr}); encErr != nil && logg != nil {
		logg.Error(ctx, "encode error response", encErr)
	}
}

func encode(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
