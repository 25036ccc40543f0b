package mcp

import (
	"testing"
	"time"
)

// Two requests answered out of order, with a malformed frame in between:
// each resolver fires exactly once with its own response, and the garbage
// frame is ignored without tearing the connection down.
func TestStdioFramingOutOfOrderResponses(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	ch1 := make(chan *JSONRPCResponse, 1)
	ch2 := make(chan *JSONRPCResponse, 1)
	transport.pendingMu.Lock()
	transport.pending[1] = ch1
	transport.pending[2] = ch2
	transport.pendingMu.Unlock()

	transport.processLine(`{"jsonrpc":"2.0","id":2,"result":{"answer":"second"}}`)
	transport.processLine(`{this is not json`)
	transport.processLine(`{"jsonrpc":"2.0","id":1,"result":{"answer":"first"}}`)

	select {
	case resp := <-ch2:
		if string(resp.Result) != `{"answer":"second"}` {
			t.Fatalf("id 2 got wrong result: %s", resp.Result)
		}
	default:
		t.Fatal("id 2 did not resolve")
	}
	select {
	case resp := <-ch1:
		if string(resp.Result) != `{"answer":"first"}` {
			t.Fatalf("id 1 got wrong result: %s", resp.Result)
		}
	default:
		t.Fatal("id 1 did not resolve")
	}

	transport.pendingMu.Lock()
	remaining := len(transport.pending)
	transport.pendingMu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected empty pending map, %d left", remaining)
	}
}

func TestStdioFramingNotificationDispatch(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	transport.processLine(`{"jsonrpc":"2.0","method":"notifications/progress","params":{"done":3}}`)

	select {
	case notif := <-transport.Events():
		if notif.Method != "notifications/progress" {
			t.Fatalf("unexpected method %q", notif.Method)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not dispatched")
	}
}

func TestStdioFramingServerRequestDispatch(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	transport.processLine(`{"jsonrpc":"2.0","id":"srv-1","method":"sampling/createMessage","params":{}}`)

	select {
	case req := <-transport.Requests():
		if req.Method != "sampling/createMessage" {
			t.Fatalf("unexpected method %q", req.Method)
		}
	case <-time.After(time.Second):
		t.Fatal("server request not dispatched")
	}
}

func TestFailPendingRejectsEveryResolverOnce(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	ch := make(chan *JSONRPCResponse, 1)
	transport.pendingMu.Lock()
	transport.pending[7] = ch
	transport.pendingMu.Unlock()

	transport.failPending()

	select {
	case resp := <-ch:
		if resp.Error == nil {
			t.Fatal("expected an error response")
		}
	default:
		t.Fatal("pending resolver not rejected")
	}

	// A response arriving after rejection finds no pending entry and is
	// discarded rather than firing the resolver twice.
	transport.processLine(`{"jsonrpc":"2.0","id":7,"result":{}}`)
	select {
	case <-ch:
		t.Fatal("resolver fired twice")
	default:
	}
}
