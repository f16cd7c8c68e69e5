package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/api/middleware"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// optionalUserID returns nil for anonymous callers.
func optionalUserID(r *http.Request) (*uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id")
	}
	return &id, nil
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	id, err := optionalUserID(r)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return *id, nil
}

func actorFromRequest(r *http.Request) orders.Actor {
	actor := orders.Actor{Role: enums.Role(middleware.RoleFromContext(r.Context()))}
	if id, err := optionalUserID(r); err == nil && id != nil {
		actor.UserID = *id
	}
	return actor
}
