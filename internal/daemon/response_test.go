package daemon

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestResponseAddMessage(t *testing.T) {
	r := &Response{}

	r.AddMessage("hello", "INFO")
	r.AddMessage("warning", "WARN")

	if len(r.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(r.Messages))
	}
	if r.Messages[0].Message != "hello" || r.Messages[0].Status != "INFO" {
		t.Errorf("First message = %+v, want {hello, INFO}", r.Messages[0])
	}
	if r.Messages[1].Message != "warning" || r.Messages[1].Status != "WARN" {
		t.Errorf("Second message = %+v, want {warning, WARN}", r.Messages[1])
	}
}

func TestResponseHasError(t *testing.T) {
	r := &Response{}
	r.AddMessage("ok", "INFO")
	if r.HasError() {
		t.Error("Expected no error")
	}
	r.AddMessage("boom", "ERROR")
	if !r.HasError() {
		t.Error("Expected HasError after an ERROR message")
	}
}

func TestResponseToJSON(t *testing.T) {
	r := &Response{}
	r.AddMessage("test message", "INFO")
	r.AddData(map[string]string{"key": "value"})

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(r.ToJSON()), &parsed); err != nil {
		t.Fatalf("ToJSON() produced invalid JSON: %v", err)
	}

	messages, ok := parsed["messages"].([]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("Expected 1 message in JSON, got %v", parsed["messages"])
	}
	if parsed["data"] == nil {
		t.Error("Expected data in JSON output")
	}
}

func TestResponseToJSONOmitsEmptyData(t *testing.T) {
	r := &Response{}
	r.AddMessage("test", "INFO")

	if strings.Contains(r.ToJSON(), "data") {
		t.Errorf("Expected 'data' to be omitted when nil: %s", r.ToJSON())
	}
}

func TestStreamingResponseWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamingResponse(&buf)

	if err := s.WriteMessage("first", "INFO"); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := s.WriteMessage("second", "ERROR"); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var msg ResponseMessage
	if err := json.Unmarshal([]byte(lines[1]), &msg); err != nil {
		t.Fatalf("Invalid JSON line %q: %v", lines[1], err)
	}
	if msg.Message != "second" || msg.Status != "ERROR" {
		t.Errorf("Second line = %+v, want {second, ERROR}", msg)
	}
}

func TestStreamingResponseConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamingResponse(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.WriteMessage("progress", "INFO")
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var msg ResponseMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("Interleaved write produced invalid line %q: %v", line, err)
		}
	}
}
