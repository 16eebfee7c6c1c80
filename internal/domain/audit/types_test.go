package audit

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordMarshalOmitsAbsentBody(t *testing.T) {
	rec := Record{
		Timestamp:   time.Unix(0, 0),
		Destination: "dst1",
		RequestBody: AbsentBody,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded["request_body"]; ok {
		t.Errorf("expected request_body to be omitted, got %v", decoded["request_body"])
	}
}

func TestRecordMarshalNullBody(t *testing.T) {
	rec := Record{
		Timestamp:   time.Unix(0, 0),
		Destination: "dst1",
		RequestBody: NullBody(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	v, ok := decoded["request_body"]
	if !ok {
		t.Fatal("expected request_body key to be present")
	}
	if v != nil {
		t.Errorf("expected request_body = null, got %v", v)
	}
}

func TestRecordMarshalPresentBody(t *testing.T) {
	rec := Record{
		Timestamp:   time.Unix(0, 0),
		Destination: "dst1",
		RequestBody: PresentBody(`{"method":"ping"}`),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["request_body"] != `{"method":"ping"}` {
		t.Errorf("request_body = %v", decoded["request_body"])
	}
}

func TestRecordMarshalMethodAndIDAlwaysPresent(t *testing.T) {
	rec := Record{Timestamp: time.Unix(0, 0), Destination: "dst1"}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	mcpMethod, ok := decoded["mcp_method"]
	if !ok || mcpMethod != nil {
		t.Errorf("mcp_method = %v, ok = %v, want present and null", mcpMethod, ok)
	}
	rpcID, ok := decoded["rpc_id"]
	if !ok || rpcID != nil {
		t.Errorf("rpc_id = %v, ok = %v, want present and null", rpcID, ok)
	}

	rec.MCPMethod = "tools/call"
	rec.RPCID = json.RawMessage(`7`)
	raw, err = json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded = nil
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["mcp_method"] != "tools/call" {
		t.Errorf("mcp_method = %v", decoded["mcp_method"])
	}
	if decoded["rpc_id"] != float64(7) {
		t.Errorf("rpc_id = %v", decoded["rpc_id"])
	}
}

func TestRecordMarshalZeroValueOmitsBothBodies(t *testing.T) {
	rec := Record{Timestamp: time.Unix(0, 0), Destination: "dst1"}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"request_body", "response_body"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("expected %q to be omitted on a zero-value Record, got %v", key, decoded[key])
		}
	}
}

func TestRecordMarshalOptionalScalarFieldsOmitted(t *testing.T) {
	rec := Record{Timestamp: time.Unix(0, 0), Destination: "dst1"}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"error", "truncated", "decode_error", "stderr_line", "detection_action", "detection_engine", "detection_detail"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("expected %q to be omitted, got %v", key, decoded[key])
		}
	}
}
