// Package spec contains constants shared by the experiment driver, the
// listener and the report tooling.
package spec

import "time"

const (
	// DefaultServerIP is the address of the VM running the receiver.
	DefaultServerIP = "10.0.1.1"

	// DefaultServerPort is the port the receiver listens on.
	DefaultServerPort = 3120

	// DefaultTransferTimeout bounds a single client invocation.
	DefaultTransferTimeout = 60 * time.Second

	// ClearSettleDelay is observed after removing shaping rules.
	ClearSettleDelay = 500 * time.Millisecond

	// ApplySettleDelay is observed after applying shaping rules and before
	// any timed transfer, so the shaper has converged.
	ApplySettleDelay = 1 * time.Second

	// TransferPause is the pause between consecutive transfers.
	TransferPause = 1 * time.Second

	// ListenerPause is the pause between two receiver invocations.
	ListenerPause = 100 * time.Millisecond

	// ServerLogName is the completion log written on the receiver side.
	ServerLogName = "results.log"

	// ClientLogName is the completion log written by the driver.
	ClientLogName = "client.log"

	// ParamLogName is the structured parameter log written by the driver.
	ParamLogName = "test_parameters.csv"

	// ReceivedFileName is the file the receiver writes incoming data to.
	ReceivedFileName = "test.out"

	// TimestampLayout is the layout of completion log timestamps (UTC).
	TimestampLayout = "2006-01-02 15:04:05"

	// CompletionPattern matches a completion line:
	//   [<timestamp>] [<test_id>] Complete transmission in <duration> ms
	CompletionPattern = `^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] \[(\d+)\] Complete transmission in (\d+(?:\.\d+)?) ms`

	// ReportedDurationPattern extracts the duration printed by the transfer
	// binaries on success.
	ReportedDurationPattern = `Complete transmission in (\d+(?:\.\d+)?) ms`

	// DefaultTolerance is the distance under which a theoretical sample is
	// treated as an exact match for an experimental parameter value.
	DefaultTolerance = 0.01

	// MonitorPath is the websocket endpoint of the live monitor.
	MonitorPath = "/shapebench/v1/monitor"

	// SecWebSocketProtocol is the value of the Sec-WebSocket-Protocol header
	// used by the live monitor.
	SecWebSocketProtocol = "net.measurementlab.shapebench.v1"
)
