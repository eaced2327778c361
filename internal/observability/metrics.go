// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/internal/bridge"
)

// Metrics contains the gatekeeper Prometheus collectors.
type Metrics struct {
	AdmissionsTotal     *prometheus.CounterVec
	ConnectingGauge     prometheus.Gauge
	ActiveGauge         prometheus.Gauge
	SweepRemovedTotal   prometheus.Counter
	PlayerSavesTotal    *prometheus.CounterVec
	Lockdown            prometheus.Gauge
	BridgeRequestsTotal *prometheus.CounterVec
}

var (
	_ admission.Observer     = (*Metrics)(nil)
	_ bridge.RequestObserver = (*Metrics)(nil)
)

// NewMetrics creates and registers the gatekeeper metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_admissions_total",
				Help: "Admission attempts by outcome",
			},
			[]string{"outcome"},
		),
		ConnectingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_connecting_sessions",
			Help: "Sessions in the connection registry",
		}),
		ActiveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_active_players",
			Help: "Players in the active registry",
		}),
		SweepRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_sweep_removed_total",
			Help: "Connecting sessions removed by the liveness sweep",
		}),
		PlayerSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_player_saves_total",
				Help: "Player saves by result",
			},
			[]string{"result"},
		),
		Lockdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_lockdown",
			Help: "1 once admission lockdown is engaged",
		}),
		BridgeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_bridge_requests_total",
				Help: "Host bridge requests by trigger and status",
			},
			[]string{"trigger", "status"},
		),
	}

	reg.MustRegister(
		m.AdmissionsTotal,
		m.ConnectingGauge,
		m.ActiveGauge,
		m.SweepRemovedTotal,
		m.PlayerSavesTotal,
		m.Lockdown,
		m.BridgeRequestsTotal,
	)
	return m
}

// AdmissionOutcome implements admission.Observer.
func (m *Metrics) AdmissionOutcome(outcome string) {
	m.AdmissionsTotal.WithLabelValues(outcome).Inc()
}

// ConnectingSessions implements admission.Observer.
func (m *Metrics) ConnectingSessions(n int) {
	m.ConnectingGauge.Set(float64(n))
}

// ActivePlayers implements admission.Observer.
func (m *Metrics) ActivePlayers(n int) {
	m.ActiveGauge.Set(float64(n))
}

// SweepRemoved implements admission.Observer.
func (m *Metrics) SweepRemoved(n int) {
	m.SweepRemovedTotal.Add(float64(n))
}

// PlayerSaved implements admission.Observer.
func (m *Metrics) PlayerSaved(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.PlayerSavesTotal.WithLabelValues(result).Inc()
}

// LockdownEngaged implements admission.Observer.
func (m *Metrics) LockdownEngaged() {
	m.Lockdown.Set(1)
}

// BridgeRequest implements bridge.RequestObserver.
func (m *Metrics) BridgeRequest(trigger string, status int) {
	m.BridgeRequestsTotal.WithLabelValues(trigger, strconv.Itoa(status)).Inc()
}
