package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunFailsWithoutCredentials(t *testing.T) {
	t.Setenv("ISSUEDECK_API_URL", "")
	t.Setenv("ISSUEDECK_USER", "")
	t.Setenv("ISSUEDECK_PASSWORD", "")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"projects"}, &stderr)

	if code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "ISSUEDECK_API_URL") {
		t.Errorf("stderr = %q, want mention of missing ISSUEDECK_API_URL", stderr.String())
	}
}
