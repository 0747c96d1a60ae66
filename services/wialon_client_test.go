package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"backend_fleetwatch/config"
	"backend_fleetwatch/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWialonClient(serverURL, token string) *WialonClient {
	return NewWialonClient(config.WialonConfig{
		BaseURL:    serverURL,
		Token:      token,
		DataFlags:  1,
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, nil)
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestWialonAuthenticateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wialon/ajax.html", r.URL.Path)
		assert.Equal(t, "token/login", r.FormValue("svc"))
		assert.Contains(t, r.FormValue("params"), `"token":"secret"`)
		writeJSON(w, map[string]interface{}{"eid": "sid-1", "user": map[string]interface{}{"nm": "api"}})
	}))
	defer server.Close()

	session, err := newTestWialonClient(server.URL, "secret").Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid-1", session.SID)
	assert.Equal(t, "api", session.User["nm"])
}

func TestWialonAuthenticateFailures(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		_, err := newTestWialonClient("http://127.0.0.1:1", "").Authenticate(context.Background())
		assert.ErrorIs(t, err, ErrAuthConfig)
		assert.True(t, IsPermanent(err))
	})

	t.Run("rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]interface{}{"error": 4, "reason": "invalid token"})
		}))
		defer server.Close()

		_, err := newTestWialonClient(server.URL, "bad").Authenticate(context.Background())
		assert.ErrorIs(t, err, ErrAuthRejected)
		assert.Contains(t, err.Error(), "invalid token")
		assert.True(t, IsPermanent(err))
	})

	t.Run("no session id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]interface{}{"user": map[string]interface{}{}})
		}))
		defer server.Close()

		_, err := newTestWialonClient(server.URL, "secret").Authenticate(context.Background())
		assert.ErrorIs(t, err, ErrAuthNoSession)
	})

	t.Run("transport error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestWialonClient(server.URL, "secret").Authenticate(context.Background())
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
	})
}

func TestWialonFetchUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1024", r.URL.Query().Get("flags"))
		assert.Equal(t, "core/search_items", r.FormValue("svc"))
		assert.Equal(t, "sid-1", r.FormValue("sid"))
		writeJSON(w, map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{
					"id": 101, "nm": "Truck 1", "uid": "860000000000001", "hw": "Teltonika FMB920", "ph": "+5210000000",
					"pflds": map[string]interface{}{
						"1": map[string]interface{}{"n": "registration_plate", "v": "ABC-123"},
					},
					"lmsg": map[string]interface{}{"t": 1700000000},
				},
				map[string]interface{}{"id": 102, "nm": "Van 2", "cfl": "XYZ-987"},
				map[string]interface{}{"nm": "no id"},
				map[string]interface{}{"id": 104},
			},
		})
	}))
	defer server.Close()

	records, err := newTestWialonClient(server.URL, "secret").FetchUnits(context.Background(), "sid-1")
	require.NoError(t, err)
	require.Len(t, records, 2, "записи без id или nm отбрасываются")

	first := records[0]
	assert.Equal(t, int64(101), first.ID)
	assert.Equal(t, "Truck 1", first.Name)
	require.NotNil(t, first.Plates)
	assert.Equal(t, "ABC-123", *first.Plates)
	require.NotNil(t, first.IMEI)
	assert.Equal(t, "860000000000001", *first.IMEI)
	assert.NotNil(t, first.LastMessage)

	require.NotNil(t, records[1].Plates)
	assert.Equal(t, "XYZ-987", *records[1].Plates)
}

func TestWialonFetchUnitsRetriesTransport(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"items": []interface{}{}})
	}))
	defer server.Close()

	records, err := newTestWialonClient(server.URL, "secret").FetchUnits(context.Background(), "sid")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWialonFetchUnitsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"error": 1, "reason": "invalid session"})
	}))
	defer server.Close()

	_, err := newTestWialonClient(server.URL, "secret").FetchUnits(context.Background(), "expired")
	var apiErr *ProviderAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "1", apiErr.Code)
	assert.Equal(t, "invalid session", apiErr.Reason)
	assert.True(t, IsPermanent(err))
	assert.NotErrorIs(t, err, ErrExhaustedRetries)
}

func TestFleetSyncStopsOnProviderAPIError(t *testing.T) {
	var searchCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.FormValue("svc") {
		case "token/login":
			writeJSON(w, map[string]interface{}{"eid": "sid-1"})
		case "core/search_items":
			atomic.AddInt32(&searchCalls, 1)
			writeJSON(w, map[string]interface{}{"error": 4, "reason": "invalid input"})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)

	client := newTestWialonClient(server.URL, "secret")
	service := NewFleetSyncService(db, client, NewRetryExecutor(3, time.Millisecond, nil), nil)

	result := service.Sync(context.Background())

	assert.True(t, result.Aborted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&searchCalls))
	assert.Contains(t, result.Message, "invalid input")
	assert.NotContains(t, result.Message, ErrExhaustedRetries.Error())
	assert.Zero(t, result.Total())
}

func TestWialonIsHealthy(t *testing.T) {
	var status int32 = http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer server.Close()

	client := newTestWialonClient(server.URL, "secret")
	assert.NoError(t, client.IsHealthy(context.Background()))

	atomic.StoreInt32(&status, http.StatusServiceUnavailable)
	assert.Error(t, client.IsHealthy(context.Background()))

	// неверный base URL отвечает 404
	atomic.StoreInt32(&status, http.StatusNotFound)
	assert.Error(t, client.IsHealthy(context.Background()))
}

func TestExtractPlates(t *testing.T) {
	tests := []struct {
		name string
		item map[string]interface{}
		want *string
	}{
		{
			name: "admin field wins over custom",
			item: map[string]interface{}{
				"pflds": []interface{}{map[string]interface{}{"n": "registration_plate", "v": "P-1"}},
				"flds":  []interface{}{map[string]interface{}{"n": "registration_plate", "v": "F-1"}},
			},
			want: strPtr("P-1"),
		},
		{
			name: "custom field case insensitive",
			item: map[string]interface{}{
				"flds": []interface{}{map[string]interface{}{"n": " Registration_Plate ", "v": " F-2 "}},
			},
			want: strPtr("F-2"),
		},
		{
			name: "empty value falls back to cfl",
			item: map[string]interface{}{
				"pflds": []interface{}{map[string]interface{}{"n": "registration_plate", "v": ""}},
				"cfl":   "C-3",
			},
			want: strPtr("C-3"),
		},
		{
			name: "nothing",
			item: map[string]interface{}{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPlates(tt.item))
		})
	}
}

func strPtr(s string) *string { return &s }
