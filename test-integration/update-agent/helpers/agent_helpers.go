package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	agentapp "github.com/stacklok/toolhive-update-agent/internal/app"
	"github.com/stacklok/toolhive-update-agent/internal/config"
)

// AgentTestHelper manages an in-process update agent for testing
type AgentTestHelper struct {
	ctx        context.Context
	configPath string
	httpClient *http.Client
	app        *agentapp.UpdateAgentApp
	done       chan error
}

// NewAgentTestHelper creates a helper for the agent described by configPath
func NewAgentTestHelper(ctx context.Context, configPath string) *AgentTestHelper {
	return &AgentTestHelper{
		ctx:        ctx,
		configPath: configPath,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WriteConfigYAML writes an agent configuration into dir and returns its path.
// coordinator holds the YAML lines of the coordinator section, without syncOptions.
func WriteConfigYAML(dir, endpoint, coordinator string) string {
	content := fmt.Sprintf(`dataDir: %s
coordinator:
%s
  syncOptions:
    deploymentKey: integration-key
    installMode: immediate
updateServer:
  endpoint: %s
  appVersion: 1.0.0
  timeout: 5s
`, filepath.Join(dir, "data"), coordinator, endpoint)

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	return path
}

// StartAgent builds and starts the agent on an ephemeral port
func (h *AgentTestHelper) StartAgent() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(h.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := agentapp.NewUpdateAgentApp(h.ctx,
		agentapp.WithConfig(cfg),
		agentapp.WithAddress("127.0.0.1:0"),
		agentapp.WithSignalWatcher(false),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	h.app = app
	h.done = make(chan error, 1)

	go func() {
		h.done <- app.Start()
	}()
	return nil
}

// StopAgent gracefully stops the agent and waits for Start to return
func (h *AgentTestHelper) StopAgent() error {
	if h.app == nil {
		return nil
	}
	err := h.app.Stop(5 * time.Second)
	select {
	case startErr := <-h.done:
		if err == nil {
			err = startErr
		}
	case <-time.After(10 * time.Second):
		return fmt.Errorf("agent did not stop in time")
	}
	h.app = nil
	return err
}

// WaitForAgentReady waits until the agent answers its readiness probe
func (h *AgentTestHelper) WaitForAgentReady(timeout time.Duration) {
	gomega.Eventually(func() int {
		if h.app == nil || h.app.Addr() == nil {
			return 0
		}
		resp, err := h.httpClient.Get(h.BaseURL() + "/readiness")
		if err != nil {
			return 0
		}
		_ = resp.Body.Close()
		return resp.StatusCode
	}, timeout, 50*time.Millisecond).Should(gomega.Equal(http.StatusOK))
}

// BaseURL returns the agent's base URL once it is listening
func (h *AgentTestHelper) BaseURL() string {
	return "http://" + h.app.Addr().String()
}

// PostRequest posts a named request and returns the response status code
func (h *AgentTestHelper) PostRequest(name string) (int, error) {
	resp, err := h.httpClient.Post(h.BaseURL()+"/v1/requests/"+name, "application/json", nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// SetLifecycle reports a lifecycle state change to the agent
func (h *AgentTestHelper) SetLifecycle(state string) (int, error) {
	body, err := json.Marshal(map[string]string{"state": state})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(h.ctx, http.MethodPut, h.BaseURL()+"/v1/lifecycle", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

// GetStatus returns the decoded /v1/status document
func (h *AgentTestHelper) GetStatus() (map[string]any, error) {
	resp, err := h.httpClient.Get(h.BaseURL() + "/v1/status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return status, nil
}

// LastResult returns the lastResult field of the agent's status, or "" on error
func (h *AgentTestHelper) LastResult() string {
	status, err := h.GetStatus()
	if err != nil {
		return ""
	}
	result, _ := status["lastResult"].(string)
	return result
}

// LoopState returns the loopState field of the agent's status, or "" on error
func (h *AgentTestHelper) LoopState() string {
	status, err := h.GetStatus()
	if err != nil {
		return ""
	}
	state, _ := status["loopState"].(string)
	return state
}
