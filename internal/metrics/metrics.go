// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptureDatagramsTotal counts received datagrams by outcome
	// (accepted, dropped, short, queue_full).
	CaptureDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmon_capture_datagrams_total",
			Help: "Total number of datagrams seen by the receiver",
		},
		[]string{"result"},
	)

	// CaptureOverflowsTotal counts overflow episodes of the capture buffer
	CaptureOverflowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netmon_capture_overflows_total",
			Help: "Number of times the capture buffer filled up",
		},
	)

	// CaptureBufferOccupancy tracks buffered, not yet reported records
	CaptureBufferOccupancy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netmon_capture_buffer_occupancy",
			Help: "Number of records waiting in the capture buffer",
		},
	)

	// ReportRecordsTotal counts records written to report consumers
	ReportRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netmon_report_records_total",
			Help: "Total number of capture records streamed to consumers",
		},
	)

	// ReportSessionsTotal counts report session events
	// (connected, disconnected, sentinel, write_error)
	ReportSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmon_report_sessions_total",
			Help: "Report session lifecycle events",
		},
		[]string{"event"},
	)

	// TransmitDatagramsTotal counts sent datagrams by kind (data, marker)
	TransmitDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmon_transmit_datagrams_total",
			Help: "Total number of datagrams sent by the transmitter",
		},
		[]string{"kind"},
	)

	// TransmitErrorsTotal counts failed sends
	TransmitErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netmon_transmit_errors_total",
			Help: "Total number of datagram send failures",
		},
	)

	// TransmitSessionsTotal counts session transitions
	// (started, completed, stopped, superseded)
	TransmitSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmon_transmit_sessions_total",
			Help: "Transmit session lifecycle events",
		},
		[]string{"event"},
	)

	// TransmitRunning is 1 while a transmit session is active
	TransmitRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netmon_transmit_running",
			Help: "Whether a transmit session is running (0/1)",
		},
	)

	// ControlCommandsTotal counts control commands by verb and reply
	ControlCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmon_control_commands_total",
			Help: "Control commands handled, by verb and reply",
		},
		[]string{"verb", "reply"},
	)

	// ConnectionsRejectedTotal counts connections refused because the
	// listener already serves one
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmon_connections_rejected_total",
			Help: "Connections refused by single-connection listeners",
		},
		[]string{"listener"},
	)
)
