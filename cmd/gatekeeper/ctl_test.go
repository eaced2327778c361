// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/internal/control"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

type stubAdmin struct {
	snapshot admission.Snapshot
	summary  admission.SaveSummary
}

func (a stubAdmin) Snapshot() admission.Snapshot { return a.snapshot }

func (a stubAdmin) SaveAll(context.Context) admission.SaveSummary { return a.summary }

// shortRuntimeDir keeps socket paths under the unix socket length limit.
func shortRuntimeDir(t *testing.T) {
	t.Helper()
	dir, err := os.MkdirTemp("", "gk")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv("XDG_RUNTIME_DIR", dir)
}

func startControl(t *testing.T, instance string, admin control.Admin) <-chan string {
	t.Helper()
	shortRuntimeDir(t)
	reasons := make(chan string, 1)
	srv := control.NewServer(instance, admin, func(reason string) { reasons <- reason })
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return reasons
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{125, "2m 5s"},
		{3600, "1h 0m"},
		{90061, "25h 1m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatUptime(tt.seconds))
		})
	}
}

func TestFormatStatusTable(t *testing.T) {
	status := control.StatusResponse{
		Running:       true,
		PID:           4242,
		UptimeSeconds: 125,
		Instance:      "eu1",
		Snapshot: admission.Snapshot{
			Lockdown:       true,
			LockdownReason: "restart",
			Connecting:     2,
			Active:         31,
		},
	}
	out := formatStatusTable(control.HealthResponse{Status: "healthy"}, status)

	assert.Contains(t, out, "INSTANCE")
	assert.Contains(t, out, "ADMISSION")
	assert.Contains(t, out, "eu1")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "2m 5s")
	assert.Contains(t, out, "locked (restart)")
	assert.Contains(t, out, "31")

	status.Lockdown = false
	assert.Contains(t, formatStatusTable(control.HealthResponse{Status: "healthy"}, status), "open")
}

func TestCtlStatus(t *testing.T) {
	startControl(t, "t1", stubAdmin{snapshot: admission.Snapshot{Connecting: 1, Active: 5}})

	out, err := runRoot(t, "ctl", "status", "--instance", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "open")
}

func TestCtlStatusJSON(t *testing.T) {
	startControl(t, "t2", stubAdmin{snapshot: admission.Snapshot{Active: 7}})

	out, err := runRoot(t, "ctl", "status", "--instance", "t2", "--json")
	require.NoError(t, err)

	var status control.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Running)
	assert.Equal(t, 7, status.Active)
	assert.Equal(t, "t2", status.Instance)
}

func TestCtlShutdownForwardsReason(t *testing.T) {
	reasons := startControl(t, "t3", stubAdmin{})

	_, err := runRoot(t, "ctl", "shutdown", "--instance", "t3", "--reason", "patch day")
	require.NoError(t, err)

	select {
	case got := <-reasons:
		assert.Equal(t, "patch day", got)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown request not delivered")
	}
}

func TestCtlSavePlayers(t *testing.T) {
	startControl(t, "t4", stubAdmin{summary: admission.SaveSummary{Saved: 3}})

	out, err := runRoot(t, "ctl", "saveplayers", "--instance", "t4")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 3 players (0 failed)")
}

func TestCtlSavePlayers_ReportsFailures(t *testing.T) {
	startControl(t, "t5", stubAdmin{summary: admission.SaveSummary{Saved: 2, Failed: 1}})

	_, err := runRoot(t, "ctl", "saveplayers", "--instance", "t5")
	errutil.AssertErrorCode(t, err, "SAVE_INCOMPLETE")
}

func TestCtlStatus_NotRunning(t *testing.T) {
	shortRuntimeDir(t)

	_, err := runRoot(t, "ctl", "status", "--instance", "absent")
	errutil.AssertErrorCode(t, err, "CONTROL_UNREACHABLE")
}
