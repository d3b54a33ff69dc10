package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowgate/internal/instance"
)

func boundClient(srv *httptest.Server, opts ...Option) *Client {
	return New(instance.Instance{
		Name: "dev", BaseURL: srv.URL,
		Username: "admin", Password: "secret",
	}, opts...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   FailureClass
	}{
		{http.StatusUnauthorized, ClassPermission},
		{http.StatusForbidden, ClassPermission},
		{http.StatusNotFound, ClassNotFound},
		{http.StatusBadRequest, ClassMalformed},
		{http.StatusRequestTimeout, ClassRetryable},
		{http.StatusTooManyRequests, ClassRetryable},
		{http.StatusInternalServerError, ClassRetryable},
		{http.StatusBadGateway, ClassRetryable},
		{http.StatusServiceUnavailable, ClassRetryable},
		{http.StatusConflict, ClassMalformed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.status), "status %d", tt.status)
	}
}

func TestGet_DecodesAndAuthenticates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "x=1", r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"result":{"value":"ok"}}`))
	}))
	defer srv.Close()

	var out struct {
		Result struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	q := url.Values{}
	q.Set("x", "1")
	err := boundClient(srv).Get(context.Background(), "/api/now/table/x", q, &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Result.Value)
}

func TestErrorResponse_ClassifiedWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"field missing"}}`))
	}))
	defer srv.Close()

	err := boundClient(srv).Post(context.Background(), "/api/now/table/x", map[string]string{}, nil)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ClassMalformed, ce.Class)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode)
	assert.Contains(t, ce.Body, "field missing",
		"the raw body rides along for verbatim surfacing")
}

func TestTransportFailure_IsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	err := boundClient(srv).Get(context.Background(), "/anything", nil, nil)
	assert.Equal(t, ClassRetryable, ClassOf(err))
}

func TestClassOf_UnclassifiedDefaultsToRetryable(t *testing.T) {
	assert.Equal(t, ClassRetryable, ClassOf(errors.New("plain")))
}

func TestMalformedJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	var out map[string]any
	err := boundClient(srv).Get(context.Background(), "/x", nil, &out)
	assert.Equal(t, ClassMalformed, ClassOf(err))
}

func TestPostForm_SendsEncodedForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "print(1)", r.PostForm.Get("script"))
		_, _ = w.Write([]byte("output"))
	}))
	defer srv.Close()

	form := url.Values{}
	form.Set("script", "print(1)")
	body, err := boundClient(srv).PostForm(context.Background(), "/sys.scripts.do", form)

	require.NoError(t, err)
	assert.Equal(t, "output", body)
}

func TestDelete_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, boundClient(srv).Delete(context.Background(), "/api/now/table/x/1"))
}
