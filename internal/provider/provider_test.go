package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPGeneratorGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TenantID != "t1" || req.Prompt != "hello" {
			t.Errorf("request = %+v", req)
		}
		if len(req.History) != 2 || req.History[0].Role != "user" {
			t.Errorf("history = %+v", req.History)
		}
		json.NewEncoder(w).Encode(map[string]string{"reply": "hi there"})
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, 5*time.Second)
	reply, err := g.Generate(context.Background(), GenerateRequest{
		TenantID:       "t1",
		ConversationID: "c1",
		History: []Turn{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "earlier reply"},
		},
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHTTPGeneratorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, 5*time.Second)
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error = %v", err)
	}
}

func TestHTTPGeneratorEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": ""})
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, 5*time.Second)
	if _, err := g.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestHTTPDelivererSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Provider != "whatsapp" || req.Channel != "+30123" || req.Peer != "peer-1" || req.Text != "hello" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"message_id": "wamid.123"})
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL, 5*time.Second, 100, 10)
	id, err := d.Send(context.Background(), Destination{Provider: "whatsapp", Channel: "+30123", Peer: "peer-1"}, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.123" {
		t.Fatalf("message id = %q", id)
	}
}

func TestHTTPDelivererMissingMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL, 5*time.Second, 100, 10)
	if _, err := d.Send(context.Background(), Destination{}, "x"); err == nil {
		t.Fatal("expected error for missing message_id")
	}
}

func TestHTTPDelivererCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached server despite cancelled context")
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL, 5*time.Second, 0.001, 1)
	// Drain the single burst token so the next Wait would block.
	if !d.limiter.Allow() {
		t.Fatal("burst token unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Send(ctx, Destination{}, "x"); err == nil {
		t.Fatal("expected pacing wait error")
	}
}
