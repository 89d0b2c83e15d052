package predict

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/features"
)

func testRecord() features.Record {
	return features.Record{
		"age":            features.Number(45),
		"bmi":            features.Number(23.5),
		"smoking_status": features.String("never"),
	}
}

func newTestServer(t *testing.T, status int, body string, inspect func(r *http.Request, body []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if inspect != nil {
			inspect(r, data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SubmitWrappedRequest(t *testing.T) {
	var got map[string]json.RawMessage
	var authHeader string
	srv := newTestServer(t, http.StatusOK, `{"predictions":{"stroke":{"risk":"Low","score":12.5}}}`,
		func(r *http.Request, body []byte) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			authHeader = r.Header.Get("Authorization")
			assert.NoError(t, json.Unmarshal(body, &got))
		})

	session := &auth.Context{Token: "tok", Username: "ann", Email: "ann@example.com"}
	c, err := New(srv.URL, WithHTTPClient(srv.Client()), WithSession(session))
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", authHeader)
	assert.JSONEq(t, `"ann@example.com"`, string(got["email"]))
	assert.JSONEq(t, `{"age":45,"bmi":23.5,"smoking_status":"never"}`, string(got["data"]))
}

func TestClient_SubmitFlatRequest(t *testing.T) {
	var body []byte
	var authHeader string
	srv := newTestServer(t, http.StatusOK, `{"predictions":{}}`, func(r *http.Request, b []byte) {
		body = b
		authHeader = r.Header.Get("Authorization")
	})

	c, err := New(srv.URL, WithHTTPClient(srv.Client()), WithShape(ShapeFlat))
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testRecord())
	require.NoError(t, err)
	assert.JSONEq(t, `{"age":45,"bmi":23.5,"smoking_status":"never"}`, string(body))
	assert.Empty(t, authHeader)
}

func TestClient_SubmitPerDiseaseResults(t *testing.T) {
	body := `{"predictions":{
		"stroke": {"risk":"Low","score":12.5},
		"hypertension": {"risk":"Moderate","score":55},
		"heart_failure": {"risk":"High","score":88.1},
		"heart_attack": 64,
		"cad": {"error":"model not available"}
	}}`
	srv := newTestServer(t, http.StatusOK, body, nil)

	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	res, err := c.Submit(context.Background(), testRecord())
	require.NoError(t, err)
	require.Len(t, res.Predictions, 5)

	assert.Equal(t, DiseaseResult{Disease: "stroke", Risk: RiskLow, Score: 12.5}, res.Predictions["stroke"])
	assert.Equal(t, RiskModerate, res.Predictions["hypertension"].Risk)
	assert.Equal(t, RiskHigh, res.Predictions["heart_failure"].Risk)
	assert.Equal(t, RiskModerate, res.Predictions["heart_attack"].Risk)
	assert.InDelta(t, 64.0, res.Predictions["heart_attack"].Score, 1e-9)

	cad := res.Predictions["cad"]
	assert.True(t, cad.Failed())
	assert.Equal(t, "model not available", cad.Error)

	assert.Len(t, res.Succeeded(), 4)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, "cad", res.Failed()[0].Disease)
	assert.Equal(t, []string{"cad", "heart_attack", "heart_failure", "hypertension", "stroke"}, res.Diseases())
}

func TestClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "server error with error field", status: 500, body: `{"error":"boom"}`, wantStatus: 500, wantMsg: "boom"},
		{name: "bad request plain text", status: 400, body: `bad input`, wantStatus: 400, wantMsg: "bad input"},
		{name: "models not loaded", status: 200, body: `{"error":"Models not loaded"}`, wantStatus: 200, wantMsg: "Models not loaded"},
		{name: "undecodable body", status: 200, body: `<html>`, wantStatus: 200, wantMsg: "invalid response body"},
		{name: "no predictions", status: 200, body: `{}`, wantStatus: 200, wantMsg: "no predictions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			c, err := New(srv.URL, WithHTTPClient(srv.Client()))
			require.NoError(t, err)

			res, err := c.Submit(context.Background(), testRecord())
			assert.Nil(t, res)

			var se *SubmissionError
			require.True(t, errors.As(err, &se), "expected SubmissionError, got %T", err)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.Contains(t, se.Message, tt.wantMsg)
		})
	}
}

func TestClient_SubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url, WithTimeout(2*time.Second))
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testRecord())
	var se *SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Zero(t, se.StatusCode)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestNew_Options(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("http://localhost", WithShape("xml"))
	assert.Error(t, err)
}

func TestCategoryForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskCategory
	}{
		{0, RiskLow},
		{50, RiskLow},
		{50.01, RiskModerate},
		{70, RiskModerate},
		{70.5, RiskHigh},
		{100, RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryForScore(tt.score), "score %v", tt.score)
	}
}

func TestParseDisease(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    DiseaseResult
		wantErr bool
	}{
		{name: "object with risk", raw: `{"risk":"high","score":91}`, want: DiseaseResult{Disease: "d", Risk: RiskHigh, Score: 91}},
		{name: "object without risk", raw: `{"score":30}`, want: DiseaseResult{Disease: "d", Risk: RiskLow, Score: 30}},
		{name: "unknown risk label", raw: `{"risk":"severe","score":30}`, want: DiseaseResult{Disease: "d", Risk: RiskUnknown, Score: 30}},
		{name: "bare number", raw: `71`, want: DiseaseResult{Disease: "d", Risk: RiskHigh, Score: 71}},
		{name: "out of range", raw: `{"risk":"High","score":140}`, wantErr: true},
		{name: "negative bare", raw: `-1`, wantErr: true},
		{name: "missing score", raw: `{"risk":"Low"}`, wantErr: true},
		{name: "string", raw: `"high"`, wantErr: true},
		{name: "empty error", raw: `{"error":""}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDisease("d", json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.True(t, got.Failed())
				assert.NotEmpty(t, got.Error)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
