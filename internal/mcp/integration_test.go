package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/cardiopredict/internal/config"
	"github.com/a3tai/cardiopredict/internal/pdf/pdftest"
)

func TestServerIntegration_ToolsList(t *testing.T) {
	env := newTestEnv(t)

	resp := env.server.mcpServer.HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	var names []string
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"cardio_schema", "cardio_extract_report", "cardio_predict", "cardio_history"}, names)
}

func TestServerIntegration_ToolsCall(t *testing.T) {
	env := newTestEnv(t)
	pdftest.WriteFile(t, env.reportDir, "checkup.pdf", "Age: 61\nBMI: 31.2\nCholesterol: 240")

	msg := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"cardio_extract_report","arguments":{"path":"checkup.pdf"}}}`
	resp := env.server.mcpServer.HandleMessage(context.Background(), json.RawMessage(msg))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	assert.Contains(t, string(data), `\"Cholesterol\": 240`)
	assert.Contains(t, string(data), `\"missing\": []`)
}

func TestServer_RunServerModeStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.Mode = config.ModeServer
	env.server.config.Host = "127.0.0.1"
	env.server.config.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}
