package ipc_test

import (
	"bytes"
	"testing"

	"github.com/dargo-project/dargo/ipc"
)

func TestWriteReadSmallMessage(t *testing.T) {
	var buf bytes.Buffer
	body := ipc.SkipBody(4096)
	if err := ipc.WriteMessage(&buf, ipc.Message{Kind: ipc.Skip, Body: body}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ipc.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Kind != ipc.Skip {
		t.Fatalf("expected Skip, got %v", got.Kind)
	}
	off, err := ipc.ParseSkipBody(got.Body)
	if err != nil {
		t.Fatalf("ParseSkipBody: %v", err)
	}
	if off != 4096 {
		t.Fatalf("expected offset 4096, got %d", off)
	}
}

func TestLargeBodySplitsAcrossBeginFrames(t *testing.T) {
	body := bytes.Repeat([]byte{0x42}, ipc.MaxFrameBody*2+17)
	var buf bytes.Buffer
	if err := ipc.WriteMessage(&buf, ipc.Message{Kind: ipc.Read, Body: body}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ipc.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Kind != ipc.Read {
		t.Fatalf("expected Read, got %v", got.Kind)
	}
	if !bytes.Equal(got.Body, body) {
		t.Fatalf("body mismatch: got %d bytes, want %d", len(got.Body), len(body))
	}
}

func TestLargeBodyExactMultipleOfFrameSize(t *testing.T) {
	body := bytes.Repeat([]byte{0x7}, ipc.MaxFrameBody*2)
	var buf bytes.Buffer
	if err := ipc.WriteMessage(&buf, ipc.Message{Kind: ipc.Read, Body: body}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ipc.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got.Body, body) {
		t.Fatalf("body mismatch: got %d bytes, want %d", len(got.Body), len(body))
	}
}

func TestSkippableBodyRoundTrip(t *testing.T) {
	body := ipc.SkippableBody(true, 99)
	forward, amount, err := ipc.ParseSkippableBody(body)
	if err != nil {
		t.Fatalf("ParseSkippableBody: %v", err)
	}
	if !forward || amount != 99 {
		t.Fatalf("mismatch: forward=%v amount=%d", forward, amount)
	}
}
