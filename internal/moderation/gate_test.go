package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHTTPGateCheck(t *testing.T) {
	var got checkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/check" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Verdict{Flagged: true, Reasons: []string{"spam"}})
	}))
	defer srv.Close()

	g := NewHTTPGate(srv.URL+"/", zap.NewNop())
	v, err := g.Check(context.Background(), "buy followers now")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Flagged || len(v.Reasons) != 1 || v.Reasons[0] != "spam" {
		t.Errorf("verdict = %+v", v)
	}
	if got.Text != "buy followers now" {
		t.Errorf("sent text = %q", got.Text)
	}
}

func TestHTTPGateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPGate(srv.URL, zap.NewNop()).Check(context.Background(), "x"); err == nil {
		t.Error("expected error on 503")
	}
}

func TestNewWithoutURLAllowsAll(t *testing.T) {
	g := New("", zap.NewNop())
	v, err := g.Check(context.Background(), "anything")
	if err != nil || v.Flagged {
		t.Errorf("AllowAll returned %+v, %v", v, err)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  hello   world ", "hello world"},
		{"markup", "<p>Summer <b>launch</b></p><p>two posts</p>", "Summer launch two posts"},
		{"script dropped", "<p>hi</p><script>alert(1)</script>", "hi"},
		{"entities", "fish &amp; chips", "fish & chips"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
