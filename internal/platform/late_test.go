package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/crosspost/internal/httpclient"
)

func newTestHTTPClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{MaxAttempts: 1})
}

func newLateForTest(t *testing.T, p Platform, apiKey string) Service {
	t.Helper()
	svc, err := NewLateService(p, apiKey, newTestHTTPClient())
	require.NoError(t, err)
	return svc
}

func TestNewLateServiceRejectsUnsupportedPlatform(t *testing.T) {
	_, err := NewLateService(Facebook, "key", newTestHTTPClient())
	assert.Error(t, err)

	_, err = NewLateService(Bluesky, "key", newTestHTTPClient())
	assert.Error(t, err)
}

func TestNewLateServiceRequiresAPIKey(t *testing.T) {
	_, err := NewLateService(Instagram, "", newTestHTTPClient())
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
}

func TestLatePostTextSuccess(t *testing.T) {
	var captured struct {
		auth    string
		payload latePayload
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.payload))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"post": {"_id": "late-1"}, "url": "https://x.com/status/1"}`))
	}))
	defer server.Close()

	old := LateBaseURL
	LateBaseURL = server.URL
	defer func() { LateBaseURL = old }()

	svc := newLateForTest(t, X, "server-key")
	result := svc.PostText(context.Background(), "hello", "LATE_MANAGED", PostOptions{AccountID: "acc-1"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "late-1", result.PlatformPostID)
	assert.Equal(t, "https://x.com/status/1", result.PlatformPostURL)

	// LATE_MANAGED resolves the server-wide key, and X maps to "twitter".
	assert.Equal(t, "Bearer server-key", captured.auth)
	require.Len(t, captured.payload.Platforms, 1)
	assert.Equal(t, "twitter", captured.payload.Platforms[0].Platform)
	assert.Equal(t, "acc-1", captured.payload.Platforms[0].AccountID)
	assert.True(t, captured.payload.PublishNow)
}

func TestLatePerAccountKeyOverridesServerKey(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id": "p1"}`))
	}))
	defer server.Close()

	old := LateBaseURL
	LateBaseURL = server.URL
	defer func() { LateBaseURL = old }()

	svc := newLateForTest(t, Instagram, "server-key")
	result := svc.PostText(context.Background(), "hi", "account-key", PostOptions{AccountID: "acc"})

	require.True(t, result.Success)
	assert.Equal(t, "Bearer account-key", auth)
}

func TestLateTiktokVideoCarriesConsentSettings(t *testing.T) {
	var payload latePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"id": "t1"}`))
	}))
	defer server.Close()

	old := LateBaseURL
	LateBaseURL = server.URL
	defer func() { LateBaseURL = old }()

	svc := newLateForTest(t, Tiktok, "key")
	result := svc.PostVideo(context.Background(), "vid", "https://cdn/v.mp4", "LATE_MANAGED", PostOptions{AccountID: "acc"})

	require.True(t, result.Success)
	require.NotNil(t, payload.TiktokSettings)
	assert.Equal(t, true, payload.TiktokSettings["express_consent_given"])
	require.Len(t, payload.MediaItems, 1)
	assert.Equal(t, "video", payload.MediaItems[0].Type)
}

func TestLateInlinePlatformFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with an embedded per-platform failure is still a failure.
		w.Write([]byte(`{"post": {"_id": "p1"}, "platformResults": [{"status": "failed", "error": "account disconnected"}]}`))
	}))
	defer server.Close()

	old := LateBaseURL
	LateBaseURL = server.URL
	defer func() { LateBaseURL = old }()

	svc := newLateForTest(t, Instagram, "key")
	result := svc.PostText(context.Background(), "hi", "LATE_MANAGED", PostOptions{AccountID: "acc"})

	require.False(t, result.Success)
	assert.Equal(t, "account disconnected", result.ErrorMessage)
}

func TestLateMissingAccountFailsWithoutRequest(t *testing.T) {
	svc := newLateForTest(t, Threads, "key")
	result := svc.PostText(context.Background(), "hi", "LATE_MANAGED", PostOptions{})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "no threads account connected")
}

func TestLateUnauthorizedIsAuthenticationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	old := LateBaseURL
	LateBaseURL = server.URL
	defer func() { LateBaseURL = old }()

	svc := newLateForTest(t, Instagram, "bad-key")
	result := svc.PostText(context.Background(), "hi", "LATE_MANAGED", PostOptions{AccountID: "acc"})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "authentication failed")
}

func TestLateGetProfileMatchesActivePlatformAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts": [
			{"_id": "a1", "platform": "instagram", "username": "old", "isActive": false},
			{"_id": "a2", "platform": "twitter", "username": "bird", "isActive": true},
			{"_id": "a3", "platform": "instagram", "username": "fresh", "displayName": "Fresh", "isActive": true}
		]}`))
	}))
	defer server.Close()

	old := LateBaseURL
	LateBaseURL = server.URL
	defer func() { LateBaseURL = old }()

	svc := newLateForTest(t, Instagram, "key")
	profile, err := svc.GetProfile(context.Background(), "LATE_MANAGED", PostOptions{})

	require.NoError(t, err)
	assert.Equal(t, "a3", profile.ID)
	assert.Equal(t, "Fresh", profile.Name)
	assert.Equal(t, "fresh", profile.Username)
}
