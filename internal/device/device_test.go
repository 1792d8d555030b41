package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", time.Second)
}

func TestIssueTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/create_tag/", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tag_id":"AB12CD34"}`))
	})
	tag, err := c.IssueTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", tag)
}

func TestReadTagTrimsPadding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get_tag/", r.URL.Path)
		_, _ = w.Write([]byte(`{"tag_id":"AB12CD34        "}`))
	})
	tag, err := c.ReadTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", tag)
}

func TestReadTagNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Tag not found"}`))
	})
	_, err := c.ReadTag(context.Background())
	assert.ErrorIs(t, err, ErrBackendCallFailed)
	assert.Contains(t, err.Error(), "Tag not found")
}

func TestActuateServo(t *testing.T) {
	cases := map[string]struct {
		status  int
		body    string
		wantErr bool
	}{
		"success":      {status: http.StatusOK, body: `{"message":"success"}`},
		"wrong answer": {status: http.StatusOK, body: `{"message":"jammed"}`, wantErr: true},
		"server error": {status: http.StatusInternalServerError, body: `{}`, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := c.ActuateServo(context.Background())
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBackendCallFailed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyPackage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "A new laptop", in["product_description"])
		assert.Equal(t, "https://gw/ipfs/bafy", in["image_url"])
		_, _ = w.Write([]byte(`{"isValidPackage":true}`))
	})
	ok, err := c.VerifyPackage(context.Background(), "A new laptop", "https://gw/ipfs/bafy")
	require.NoError(t, err)
	assert.True(t, ok)
}
