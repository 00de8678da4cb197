package object

import (
	"io"
	"strings"
	"testing"
)

func TestJoinPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "owner/contract.pdf", want: "owner/contract.pdf"},
		{name: "simple prefix", prefix: "root", key: "owner/contract.pdf", want: "root/owner/contract.pdf"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/owner/contract.pdf", want: "root/owner/contract.pdf"},
		{name: "empty key", prefix: "root", key: "", want: "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := JoinPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("JoinPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestNewKey(t *testing.T) {
	key, err := NewKey("guest:1", "msa/v2.pdf")
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	owner, name, ok := strings.Cut(key, "/")
	if !ok || owner != OwnerKey("guest:1") || len(owner) != 64 {
		t.Fatalf("unexpected owner segment in %q", key)
	}
	if !strings.HasSuffix(name, "_msa_v2.pdf") {
		t.Fatalf("unexpected name segment %q", name)
	}
	if _, err := NewKey("guest:1", "../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestSniffReplaysHead(t *testing.T) {
	body := "%PDF-1.7\n" + strings.Repeat("x", 1000)
	r, mime, err := Sniff(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if mime != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", mime)
	}
	counter := &CountingReader{R: r}
	got, _ := io.ReadAll(counter)
	if string(got) != body || counter.N != int64(len(body)) {
		t.Fatalf("body not replayed: %d bytes", counter.N)
	}
}
