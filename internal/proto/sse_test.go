package proto

import "testing"

func TestIsValidSSELine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"", true},
		{"data: hello", true},
		{"event: endpoint", true},
		{"id: 1", true},
		{"retry: 1000", true},
		{": comment", true},
		{"garbage: nope", false},
		{"Data: wrong case prefix not in set", false},
	}
	for _, tt := range tests {
		got := IsValidSSELine([]byte(tt.line))
		if got != tt.want {
			t.Errorf("IsValidSSELine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestSSEFieldName(t *testing.T) {
	field, value := SSEFieldName([]byte("data: /dst1/message?session_id=s1"))
	if field != "data" {
		t.Errorf("field = %q, want data", field)
	}
	if string(value) != "/dst1/message?session_id=s1" {
		t.Errorf("value = %q", value)
	}

	field, value = SSEFieldName([]byte("event:endpoint"))
	if field != "event" || string(value) != "endpoint" {
		t.Errorf("got field=%q value=%q", field, value)
	}
}
