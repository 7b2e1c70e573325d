package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/binder"
)

type verifyInput struct {
	ReceiptData string `json:"receiptData"`
	ProductID   string `json:"productId"`
}

func jsonRequest(body, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestJSON(t *testing.T) {
	t.Parallel()

	bind := binder.JSON()

	t.Run("decodes", func(t *testing.T) {
		t.Parallel()
		var in verifyInput
		err := bind(jsonRequest(`{"receiptData":"abc","productId":"pro.monthly"}`, "application/json; charset=utf-8"), &in)
		require.NoError(t, err)
		assert.Equal(t, "abc", in.ReceiptData)
		assert.Equal(t, "pro.monthly", in.ProductID)
	})

	tests := []struct {
		name string
		body string
		ct   string
		want error
	}{
		{"missing content type", `{}`, "", binder.ErrMissingContentType},
		{"wrong media type", `{}`, "text/plain", binder.ErrUnsupportedMediaType},
		{"unknown field", `{"receiptData":"a","extra":1}`, "application/json", binder.ErrInvalidJSON},
		{"trailing data", `{"receiptData":"a"}{}`, "application/json", binder.ErrInvalidJSON},
		{"malformed", `{"receiptData":`, "application/json", binder.ErrInvalidJSON},
		{"empty", ``, "application/json", binder.ErrInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var in verifyInput
			assert.ErrorIs(t, bind(jsonRequest(tt.body, tt.ct), &in), tt.want)
		})
	}

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		var in verifyInput
		body := `{"receiptData":"` + strings.Repeat("a", 64) + `"}`
		err := binder.JSON(binder.WithMaxSize(16))(jsonRequest(body, "application/json"), &in)
		assert.ErrorIs(t, err, binder.ErrBodyTooLarge)
	})

	t.Run("allow empty", func(t *testing.T) {
		t.Parallel()
		var in verifyInput
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		assert.NoError(t, binder.JSON(binder.AllowEmpty())(req, &in))
	})
}

func TestPath(t *testing.T) {
	t.Parallel()

	params := map[string]string{"resource": "chat", "n": "3", "flag": "yes"}
	extract := func(_ *http.Request, name string) string { return params[name] }

	var in struct {
		Resource string `path:"resource"`
		N        int    `path:"n"`
		Skip     string `path:"-"`
	}
	require.NoError(t, binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), &in))
	assert.Equal(t, "chat", in.Resource)
	assert.Equal(t, 3, in.N)

	var bad struct {
		Flag bool `path:"flag"`
	}
	assert.ErrorIs(t, binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), &bad), binder.ErrInvalidPath)

	var notPtr struct{}
	assert.ErrorIs(t, binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), notPtr), binder.ErrInvalidPath)
}
