package statsd

import (
	"net"
	"strings"
	"testing"
)

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" extraction/job ": "extraction_job",
		"job..duration":    "job.duration",
		".leading.dot.":    "leading.dot",
		"two  spaces":      "two__spaces",
		"":                 "",
	}

	for input, want := range tests {
		if got := cleanName(input); got != want {
			t.Fatalf("cleanName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestQualify(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "invoiceinbox"}
	if got := c.qualify("job.completed"); got != "invoiceinbox.job.completed" {
		t.Fatalf("qualify with prefix = %q", got)
	}

	bare := &Client{}
	if got := bare.qualify("job.completed"); got != "job.completed" {
		t.Fatalf("qualify without prefix = %q", got)
	}
}

func TestTagSuffix(t *testing.T) {
	t.Parallel()

	base := map[string]string{
		"env":       "prod",
		" service ": " worker ",
	}
	extra := map[string]string{
		"outcome": " success ",
		"":        "ignored",
		"env":     "stage",
	}

	got := tagSuffix(base, extra)
	want := "|#env:stage,outcome:success,service:worker"
	if got != want {
		t.Fatalf("tagSuffix mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := tagSuffix(nil, nil); got != "" {
		t.Fatalf("tagSuffix(nil, nil) = %q, want empty", got)
	}
}

func TestCopyTagsDetachesFromSource(t *testing.T) {
	t.Parallel()

	src := map[string]string{"env": "prod", "": "dropped"}
	cp := copyTags(src)

	cp["env"] = "stage"
	if src["env"] != "prod" {
		t.Fatal("copyTags did not copy values")
	}
	if _, ok := cp[""]; ok {
		t.Fatal("copyTags kept an empty key")
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{enabled: true, conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected Enabled with a live connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected disabled after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientInertWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Options{Enabled: true, Address: "  "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected inert client when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Options{Enabled: true, Address: "not an address"})
	if err == nil {
		t.Fatal("expected dial error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
