package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"backend_fleetwatch/models"
	"backend_fleetwatch/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	result   services.IngestResult
	payloads []models.Payload
}

func (f *fakeIngester) Ingest(ctx context.Context, payload models.Payload) services.IngestResult {
	f.payloads = append(f.payloads, payload)
	return f.result
}

func setupAlertsRouter(ingester AlertIngester) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewWialonAlertsAPI(ingester).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postAlert(r http.Handler, contentType string, body string, query string) *httptest.ResponseRecorder {
	target := "/api/v1/wialon/alerts"
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleAlertOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		result  services.IngestResult
		status  int
		message string
	}{
		{"accepted", services.IngestResult{Outcome: services.IngestAccepted}, http.StatusOK, "Alert processed"},
		{"throttled", services.IngestResult{Outcome: services.IngestThrottled}, http.StatusOK, "Alert ignored due to throttling"},
		{"unknown unit", services.IngestResult{Outcome: services.IngestUnknownUnit}, http.StatusOK, "Unit not tracked"},
		{"invalid payload", services.IngestResult{Outcome: services.IngestRejected, Err: services.ErrInvalidAlertPayload}, http.StatusBadRequest, "Invalid data"},
		{"persistence failure", services.IngestResult{Outcome: services.IngestRejected, Err: services.ErrAlertPersistence}, http.StatusInternalServerError, "Internal server error"},
		{"escalation failure", services.IngestResult{Outcome: services.IngestRejected, Err: errors.New("boom")}, http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupAlertsRouter(&fakeIngester{result: tt.result})
			w := postAlert(r, "application/json", `{"unit_id": 1, "alert_name": "Panic"}`, "")

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["message"])
		})
	}
}

func TestHandleAlertReadsJSONBody(t *testing.T) {
	ingester := &fakeIngester{result: services.IngestResult{Outcome: services.IngestAccepted}}
	r := setupAlertsRouter(ingester)

	w := postAlert(r, "application/json", `{"unit_id": 123456789012, "alert_name": "Speeding", "speed": 110}`, "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ingester.payloads, 1)
	id, ok := ingester.payloads[0].Int64("unit_id")
	assert.True(t, ok)
	assert.Equal(t, int64(123456789012), id)
	assert.Equal(t, "Speeding", ingester.payloads[0]["alert_name"])
}

func TestHandleAlertReadsFormAndQuery(t *testing.T) {
	ingester := &fakeIngester{result: services.IngestResult{Outcome: services.IngestAccepted}}
	r := setupAlertsRouter(ingester)

	form := url.Values{}
	form.Set("alert_name", "Panic")
	form.Set("text", "Driver pressed panic")
	w := postAlert(r, "application/x-www-form-urlencoded", form.Encode(), "unit_id=42&alert_name=fromquery")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ingester.payloads, 1)
	payload := ingester.payloads[0]
	assert.Equal(t, "42", payload["unit_id"])
	assert.Equal(t, "Panic", payload["alert_name"], "поля тела перекрывают query")
	assert.Equal(t, "Driver pressed panic", payload["text"])
}

func TestHandleAlertReadsMultipart(t *testing.T) {
	ingester := &fakeIngester{result: services.IngestResult{Outcome: services.IngestAccepted}}
	r := setupAlertsRouter(ingester)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("unit_id", "42"))
	require.NoError(t, mw.WriteField("alert_name", "Panic"))
	require.NoError(t, mw.Close())

	w := postAlert(r, mw.FormDataContentType(), body.String(), "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ingester.payloads, 1)
	assert.Equal(t, "Panic", ingester.payloads[0]["alert_name"])
}

func TestHandleAlertMalformedJSON(t *testing.T) {
	ingester := &fakeIngester{}
	r := setupAlertsRouter(ingester)

	w := postAlert(r, "application/json", `{"unit_id": `, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid data", decodeBody(t, w)["message"])
	assert.Empty(t, ingester.payloads)
}
