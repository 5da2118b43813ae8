package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/stacklok/toolhive-update-agent/internal/api/v1"
	"github.com/stacklok/toolhive-update-agent/internal/httpclient"
	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
)

const (
	defaultAgentURL     = "http://localhost:8080"
	controlClientTimeout = 10 * time.Second
)

var requestCmd = &cobra.Command{
	Use:   "request <name>",
	Short: "Post a named request to a running agent",
	Long: `Post a named request to a running agent.

A request matching the agent's trigger request name starts a sync; one matching the
delay cancel request name ends the initial delay early.`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

var lifecycleCmd = &cobra.Command{
	Use:       "lifecycle [active|background|inactive]",
	Short:     "Show or change the lifecycle state of a running agent",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(lifecycle.StateActive), string(lifecycle.StateBackground), string(lifecycle.StateInactive)},
	RunE:      runLifecycle,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the sync status of a running agent",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	for _, cmd := range []*cobra.Command{requestCmd, lifecycleCmd, statusCmd} {
		cmd.Flags().String("agent-url", defaultAgentURL, "Base URL of the running agent")
	}
}

// controlClient is swapped out in tests
var controlClient = func() httpclient.Client {
	return httpclient.NewDefaultClient(controlClientTimeout)
}

func agentURL(cmd *cobra.Command, path string) (string, error) {
	base, err := cmd.Flags().GetString("agent-url")
	if err != nil {
		return "", fmt.Errorf("failed to get agent-url flag: %w", err)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return "", fmt.Errorf("invalid agent-url %q: %w", base, err)
	}
	return strings.TrimSuffix(base, "/") + path, nil
}

func runRequest(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := requests.ValidateName(name); err != nil {
		return err
	}

	target, err := agentURL(cmd, "/v1/requests/"+url.PathEscape(name))
	if err != nil {
		return err
	}

	body, err := controlClient().Send(cmd.Context(), http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("failed to post request: %w", err)
	}

	var resp v1.RequestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Request %s accepted (id %s)\n", resp.Name, resp.ID)
	return nil
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	target, err := agentURL(cmd, "/v1/lifecycle")
	if err != nil {
		return err
	}
	client := controlClient()

	if len(args) == 1 {
		state, err := lifecycle.ParseState(args[0])
		if err != nil {
			return err
		}
		payload, err := json.Marshal(v1.LifecycleRequest{State: string(state)})
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		if _, err := client.Send(cmd.Context(), http.MethodPut, target, payload); err != nil {
			return fmt.Errorf("failed to set lifecycle state: %w", err)
		}
	}

	body, err := client.Get(cmd.Context(), target)
	if err != nil {
		return fmt.Errorf("failed to get lifecycle state: %w", err)
	}
	var resp v1.LifecycleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.State)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	target, err := agentURL(cmd, "/v1/status")
	if err != nil {
		return err
	}

	body, err := controlClient().Get(cmd.Context(), target)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	var status map[string]any
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	output, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}
