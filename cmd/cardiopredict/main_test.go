package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/pdf/pdftest"
)

const testSchemaYAML = `diseases:
  - name: stroke
    title: Stroke
    features: [Age, BMI, smoking_status]
  - name: cad
    title: Coronary Artery Disease
    features: [Age, Cholesterol]
`

type cliEnv struct {
	dir         string
	baseArgs    []string
	predictHits atomic.Int32
	failFirst   atomic.Bool
	lastRequest atomic.Value
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{dir: t.TempDir()}

	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var creds auth.Credentials
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Invalid email or password"}`))
				return
			}
			_, _ = w.Write([]byte(`{"message":"Login successful","username":"ann","email":"` + creds.Email + `"}`))
		case "/signup":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"message":"User registered successfully"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(authSrv.Close)

	predictSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.predictHits.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		env.lastRequest.Store(body)

		if env.failFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Models not loaded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"predictions":{"stroke":{"risk":"High","score":74.5},"cad":{"risk":"Low","score":20}}}`))
	}))
	t.Cleanup(predictSrv.Close)

	schemaFile := filepath.Join(env.dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaFile, []byte(testSchemaYAML), 0o644))

	env.baseArgs = []string{
		"--auth-url", authSrv.URL,
		"--predict-url", predictSrv.URL,
		"--schema", schemaFile,
		"--report-dir", env.dir,
		"--session-file", filepath.Join(env.dir, "state", "session.yaml"),
		"--history-db", filepath.Join(env.dir, "state", "history.db"),
	}
	return env
}

func (e *cliEnv) run(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(strings.NewReader(input), &out, &errOut)
	root.SetArgs(append(append([]string{}, e.baseArgs...), args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	out, _, err := e.run(t, "", "login", "--email", "ann@example.com", "--password", "secret")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as ann")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(strings.NewReader(""), &out, &bytes.Buffer{})
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version: dev")
	assert.Contains(t, out.String(), "Built with: go")
}

func TestSchemaCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "4 features in total")
	assert.Contains(t, out, "Coronary Artery Disease [cad] (2)")

	out, _, err = env.run(t, "", "schema", "--disease", "stroke")
	require.NoError(t, err)
	assert.Contains(t, out, "smoking_status")
	assert.NotContains(t, out, "Cholesterol")

	_, _, err = env.run(t, "", "schema", "--disease", "flu")
	assert.Error(t, err)
}

func TestAccountCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")

	out, _, err = env.run(t, "ann\nann@example.com\n555-0100\nsecret\n", "signup")
	require.NoError(t, err)
	assert.Contains(t, out, "User registered successfully")

	_, _, err = env.run(t, "", "login", "--email", "ann@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email or password")

	// password read from input
	out, _, err = env.run(t, "secret\n", "login", "--email", "ann@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ann")

	out, _, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ann <ann@example.com>")

	out, _, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	out, _, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestPredictRequiresLogin(t *testing.T) {
	env := newCLIEnv(t)
	report := pdftest.WriteFile(t, env.dir, "r.pdf", "Age: 50")

	_, _, err := env.run(t, "", "predict", report)
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	assert.Zero(t, env.predictHits.Load())
}

func TestPredictCompleteReport(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	report := pdftest.WriteFile(t, env.dir, "full.pdf",
		"Age: 63\nBMI: 27.4\nsmoking_status: former", "Cholesterol - 245")

	out, _, err := env.run(t, "", "predict", report)
	require.NoError(t, err)

	assert.Contains(t, out, "Risk assessment:")
	assert.Contains(t, out, "Stroke")
	assert.Contains(t, out, "74.50%")
	assert.NotContains(t, out, "Please enter")
	assert.Equal(t, int32(1), env.predictHits.Load())

	body := env.lastRequest.Load().(map[string]any)
	assert.Equal(t, "ann@example.com", body["email"])
	assert.Equal(t, map[string]any{"Age": 63.0, "BMI": 27.4, "smoking_status": "former", "Cholesterol": 245.0}, body["data"])

	out, _, err = env.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Coronary Artery Disease")
	assert.Contains(t, out, "High")
}

func TestPredictPromptsForMissing(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	report := pdftest.WriteFile(t, env.dir, "partial.pdf", "Age: 63\nBMI: 27.4")

	// smoking_status then Cholesterol, in schema order
	out, _, err := env.run(t, "never\n210\n", "predict", report)
	require.NoError(t, err)

	assert.Contains(t, out, "2 of 4 features were not found")
	assert.Contains(t, out, "smoking_status (Stroke)")
	assert.Contains(t, out, "Cholesterol (Coronary Artery Disease)")
	assert.Contains(t, out, "Risk assessment:")

	data := env.lastRequest.Load().(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "never", data["smoking_status"])
	assert.Equal(t, 210.0, data["Cholesterol"])
}

func TestPredictReportsRemainingBeforePromptingAgain(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	report := pdftest.WriteFile(t, env.dir, "partial.pdf", "Age: 63\nBMI: 27.4")

	// smoking_status left blank on the first pass
	out, errOut, err := env.run(t, "\n210\nnever\n", "predict", report)
	require.NoError(t, err)

	assert.Contains(t, errOut, "still missing: smoking_status")
	assert.Contains(t, out, "1 of 4 features were not found")
	assert.Contains(t, out, "Risk assessment:")
	assert.Equal(t, int32(1), env.predictHits.Load())

	data := env.lastRequest.Load().(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "never", data["smoking_status"])
	assert.Equal(t, 210.0, data["Cholesterol"])
}

func TestPredictValuesAndNoPrompt(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	report := pdftest.WriteFile(t, env.dir, "partial.pdf", "Age: 63\nBMI: 27.4")

	_, _, err := env.run(t, "", "predict", report, "--no-prompt", "--value", "Cholesterol=210")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smoking_status")
	assert.Zero(t, env.predictHits.Load(), "incomplete records are never submitted")

	_, errOut, err := env.run(t, "", "predict", report, "--no-prompt",
		"--value", "Cholesterol=210", "--value", "smoking_status=never", "--value", "Age=99")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Ignoring --value Age")
	assert.Equal(t, int32(1), env.predictHits.Load())

	data := env.lastRequest.Load().(map[string]any)["data"].(map[string]any)
	assert.Equal(t, 63.0, data["Age"])

	_, _, err = env.run(t, "", "predict", report, "--value", "Glucose=5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown feature")

	_, _, err = env.run(t, "", "predict", report, "--value", "novalue")
	require.Error(t, err)
}

func TestPredictIncompleteInputEnds(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	report := pdftest.WriteFile(t, env.dir, "partial.pdf", "Age: 63")

	_, _, err := env.run(t, "30\n", "predict", report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still missing")
	assert.Zero(t, env.predictHits.Load())
}

func TestPredictRetryAfterFailure(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	report := pdftest.WriteFile(t, env.dir, "full.pdf", "Age: 63 BMI: 27.4 smoking_status: never Cholesterol: 200")

	env.failFirst.Store(true)
	out, errOut, err := env.run(t, "y\n", "predict", report)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Models not loaded")
	assert.Contains(t, out, "Risk assessment:")
	assert.Equal(t, int32(2), env.predictHits.Load())

	env.failFirst.Store(true)
	_, _, err = env.run(t, "", "predict", report, "--no-prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Models not loaded")
	assert.Equal(t, int32(3), env.predictHits.Load())
}

func TestPredictRejectsNonPDF(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	fake := filepath.Join(env.dir, "fake.pdf")
	require.NoError(t, os.WriteFile(fake, []byte("not really a pdf"), 0o644))

	_, _, err := env.run(t, "", "predict", fake)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF document")
	assert.Zero(t, env.predictHits.Load())
}

func TestExtractCommand(t *testing.T) {
	env := newCLIEnv(t)
	report := pdftest.WriteFile(t, env.dir, "partial.pdf", "Age: 63\nBMI: 27.4")

	out, _, err := env.run(t, "", "extract", report)
	require.NoError(t, err)
	assert.Contains(t, out, "1 pages")
	assert.Contains(t, out, "Found 2 of 4 features")
	assert.Contains(t, out, "Missing 2:")

	out, _, err = env.run(t, "", "extract", report, "--json")
	require.NoError(t, err)

	var decoded struct {
		Record  map[string]float64 `json:"record"`
		Missing []string           `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, map[string]float64{"Age": 63, "BMI": 27.4}, decoded.Record)
	assert.Equal(t, []string{"smoking_status", "Cholesterol"}, decoded.Missing)
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"BMI=24.1", " smoking_status = never "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"BMI": "24.1", "smoking_status": "never"}, got)

	_, err = parseValues([]string{"=3"})
	assert.Error(t, err)
}
