// Package integration provides integration tests for the ToolHive update agent.
// These tests run the complete agent in-process against a fake update server and
// drive it through its HTTP control API: start syncs, named requests, lifecycle
// resume, the sync interval and the one-time initial delay.
package integration
