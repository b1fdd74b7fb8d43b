package dispatch

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

func TestHTTPPublisher_DispatchSendsJSONToProviderURL(t *testing.T) {
	var received TaskRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	pub := NewHTTPPublisher(map[string]string{"provider-a": server.URL}, time.Second)

	req := TaskRequest{JobID: "job-1", SubTaskID: "sub-1", ProviderID: "provider-a", TaskType: "crawl"}
	err := pub.Dispatch(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "job-1", received.JobID)
	assert.Equal(t, "sub-1", received.SubTaskID)
}

func TestHTTPPublisher_DispatchUnknownProviderFails(t *testing.T) {
	pub := NewHTTPPublisher(map[string]string{}, time.Second)

	err := pub.Dispatch(context.Background(), TaskRequest{ProviderID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestHTTPPublisher_DispatchNonSuccessStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := NewHTTPPublisher(map[string]string{"provider-a": server.URL}, time.Second)

	err := pub.Dispatch(context.Background(), TaskRequest{ProviderID: "provider-a"})
	assert.Error(t, err)
}
