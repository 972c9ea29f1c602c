package wire

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// MessageType is the closed set of tunnel envelope types (spec.md §4.8).
type MessageType string

const (
	Ping  MessageType = "ping"
	Pong  MessageType = "pong"

	ContextPing MessageType = "context-ping"
	ContextPong MessageType = "context-pong"

	DeviceRegisterRequest  MessageType = "device_register_request"
	DeviceRegisterResponse MessageType = "device_register_response"
	DeviceRegisterAck      MessageType = "device_register_ack"

	DeviceModelReport         MessageType = "device_model_report"
	DeviceModelReportResponse MessageType = "device_model_report_response"

	DeviceHeartbeatReport         MessageType = "device_heartbeat_report"
	DeviceHeartbeatReportResponse MessageType = "device_heartbeat_report_response"

	TaskRequest  MessageType = "task_request"
	TaskResponse MessageType = "task_response"
	TaskStream   MessageType = "task_stream"

	ChatRequestStream  MessageType = "chat_request_stream"
	ChatResponseStream MessageType = "chat_response_stream"

	ChatRequestNoStream MessageType = "chat_request_no_stream"
	ChatResponse        MessageType = "chat_response"

	CompletionRequestStream    MessageType = "completion_request_stream"
	CompletionRequestNoStream  MessageType = "completion_request_no_stream"
	CompletionResponseStream   MessageType = "completion_response_stream"
	CompletionResponse         MessageType = "completion_response"

	GenerateRequestStream   MessageType = "generate_request_stream"
	GenerateRequestNoStream MessageType = "generate_request_no_stream"

	ProxyRequest MessageType = "proxy_request"
)

// knownTypes is the closed set validators check membership against.
var knownTypes = map[MessageType]bool{
	Ping: true, Pong: true,
	ContextPing: true, ContextPong: true,
	DeviceRegisterRequest: true, DeviceRegisterResponse: true, DeviceRegisterAck: true,
	DeviceModelReport: true, DeviceModelReportResponse: true,
	DeviceHeartbeatReport: true, DeviceHeartbeatReportResponse: true,
	TaskRequest: true, TaskResponse: true, TaskStream: true,
	ChatRequestStream: true, ChatResponseStream: true,
	ChatRequestNoStream: true, ChatResponse: true,
	CompletionRequestStream: true, CompletionRequestNoStream: true,
	CompletionResponseStream: true, CompletionResponse: true,
	GenerateRequestStream: true, GenerateRequestNoStream: true,
	ProxyRequest: true,
}

// Envelope is the tunnel wire frame (spec.md §3 "Tunnel message", §4.1
// "Tunnel envelope"). Payload is kept raw so each message type's specific
// schema can be decoded by the caller after the type switch.
type Envelope struct {
	Type      MessageType     `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeEnvelope validates and decodes a raw tunnel frame. Unknown types
// produce a wrapped ErrMalformed (spec.md: "Validators reject unknown
// `type` with a \"malformed message\" error").
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !knownTypes[env.Type] {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	return env, nil
}

// EncodeEnvelope serializes an Envelope back to bytes. Round-tripping a
// validated envelope through Decode/Encode reproduces an equivalent
// envelope (spec.md §8 round-trip law), modulo JSON key ordering which is
// not semantically significant.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// TaskPayload is the common shape carried by task_request/task_response/
// task_stream and the chat/completion/generate request-response families,
// correlated on TaskID per spec.md §4.8 "Routing rules".
type TaskPayload struct {
	TaskID string          `json:"taskId"`
	Model  string          `json:"model,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Done   bool            `json:"done,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ContextPingPayload is the payload for context-ping/context-pong, which
// carry a requestId instead of a taskId.
type ContextPingPayload struct {
	RequestID string `json:"requestId"`
	Timestamp int64  `json:"timestamp"`
}

// DeviceHeartbeatPayload is the payload for device_heartbeat_report
// (spec.md §4.8 "Heartbeat").
type DeviceHeartbeatPayload struct {
	DeviceID     string          `json:"deviceId"`
	IP           string          `json:"ip"`
	CPUPercent   float64         `json:"cpuPercent"`
	MemPercent   float64         `json:"memPercent"`
	GPUPercent   float64         `json:"gpuPercent"`
	CurrentModel string          `json:"currentModel,omitempty"`
	DeviceInfo   json.RawMessage `json:"deviceInfo,omitempty"`
}

// DeviceModelReportPayload is the payload for device_model_report,
// publishing the inventory derived from C6.
type DeviceModelReportPayload struct {
	DeviceID string  `json:"deviceId"`
	Models   []Model `json:"models"`
}

// Model here duplicates backend.Model's shape at the wire boundary so this
// package has no import-cycle dependency on internal/backend; callers
// convert between the two.
type Model struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	Family     string `json:"family,omitempty"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// DeviceRegisterPayload is the payload for device_register_request.
type DeviceRegisterPayload struct {
	DeviceID      string `json:"deviceId"`
	DeviceName    string `json:"deviceName"`
	GatewayAddr   string `json:"gatewayAddress"`
	RewardAddress string `json:"rewardAddress,omitempty"`
	Code          string `json:"code,omitempty"`
}
