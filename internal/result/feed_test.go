package result

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survivor-pool-bot/internal/model"
)

func ref(s string) *string { return &s }

func TestFeedClient_Scores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matches/42", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		w.Write([]byte(`{"status":"FINISHED","score":{"fullTime":{"home":2,"away":1}}}`))
	}))
	defer server.Close()

	client := NewFeedClient(server.URL, "secret")
	home, away, err := client.Scores(context.Background(), &model.Fixture{ExternalRef: ref("42")})
	require.NoError(t, err)
	assert.Equal(t, 2, home)
	assert.Equal(t, 1, away)
}

func TestFeedClient_Scores_NotFinished(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"IN_PLAY","score":{"fullTime":{"home":null,"away":null}}}`))
	}))
	defer server.Close()

	client := NewFeedClient(server.URL, "secret")
	_, _, err := client.Scores(context.Background(), &model.Fixture{ExternalRef: ref("42")})
	assert.ErrorIs(t, err, ErrResultUnavailable)
}

func TestFeedClient_Scores_TransportError(t *testing.T) {
	// A dead endpoint must still map to ErrResultUnavailable, with the
	// transport failure preserved in the message for the logs.
	client := NewFeedClient("http://127.0.0.1:1", "secret")
	_, _, err := client.Scores(context.Background(), &model.Fixture{ExternalRef: ref("42")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultUnavailable)
	assert.Contains(t, err.Error(), "feed request failed")
	assert.NotEqual(t, "feed request failed: "+ErrResultUnavailable.Error(), err.Error())
}

func TestFeedClient_Scores_NoExternalRef(t *testing.T) {
	client := NewFeedClient("http://example.invalid", "secret")
	_, _, err := client.Scores(context.Background(), &model.Fixture{})
	assert.ErrorIs(t, err, ErrResultUnavailable)
}
