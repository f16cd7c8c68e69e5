package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded by
// [lower, upper].
func ParseQueryInt(r *http.Request, key string, fallback, lower, upper int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < lower || value > upper {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": lower, "max": upper})
	}
	return value, nil
}
