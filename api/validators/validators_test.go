package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

type sampleLine struct {
	Price int64 `json:"unitPrice" validate:"min=0"`
}

type samplePayload struct {
	Name  string       `json:"name" validate:"max=5"`
	Lines []sampleLine `json:"lines" validate:"dive"`
}

func decode(body string) (samplePayload, error) {
	var out samplePayload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return out, DecodeJSONBody(req, &out)
}

func TestDecodeJSONBody(t *testing.T) {
	out, err := decode(`{"name":"tarta","lines":[{"unitPrice":100}]}`)
	require.NoError(t, err)
	require.Equal(t, "tarta", out.Name)

	for name, body := range map[string]string{
		"empty":    "",
		"unknown":  `{"nope":1}`,
		"trailing": `{"name":"a"}{"name":"b"}`,
		"syntax":   `{"name":`,
		"too big":  `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decode(body)
			require.Error(t, err)
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	_, err := decode(`{"name":"croissant","lines":[{"unitPrice":-1}]}`)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be at most 5", details["name"])
	require.Equal(t, "must be at least 0", details["lines[0].unitPrice"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 20, v)

	v, err = ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, v)

	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	require.Error(t, err)
	_, err = ParseQueryInt(req, "big", 25, 1, 100)
	require.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "hola", SanitizeString("  hola \t", 0))
	require.Equal(t, "ab", SanitizeString("a\x00b", 10))
	require.Equal(t, "ñañ", SanitizeString("ñañaña", 3))
	require.Equal(t, "pan", SanitizeString("pan de", 4))
}
