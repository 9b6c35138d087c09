package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("server")

	var buf bytes.Buffer
	if err := Init("info", &buf); err != nil {
		t.Fatal(err)
	}

	logger.Info("server ready", "path", "/tmp/test.sock")

	out := buf.String()
	if !strings.Contains(out, `msg="server ready"`) {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=server") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "path=/tmp/test.sock") {
		t.Fatalf("expected path field, got: %s", out)
	}
}

func TestQuietFiltersInfo(t *testing.T) {
	logger := L("audio")

	var buf bytes.Buffer
	if err := Init("quiet", &buf); err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	logger.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered when quiet: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("error log should be emitted: %s", out)
	}
}

func TestTraceLevel(t *testing.T) {
	logger := L("server")

	var buf bytes.Buffer
	if err := Init("debug", &buf); err != nil {
		t.Fatal(err)
	}
	Trace(logger, "dropped at debug")
	if buf.Len() != 0 {
		t.Fatalf("trace log emitted at debug level: %s", buf.String())
	}

	if err := Init("trace", &buf); err != nil {
		t.Fatal(err)
	}
	Trace(logger, "data dropped for client")
	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Fatalf("expected TRACE level name, got: %s", out)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInitRedirectsDerivedLoggers(t *testing.T) {
	logger := L("transport").With("client", "fd 7").WithGroup("write")

	var first, second bytes.Buffer
	if err := Init("info", &first); err != nil {
		t.Fatal(err)
	}
	logger.Info("partial", "n", 3)

	if err := Init("info", &second); err != nil {
		t.Fatal(err)
	}
	logger.Info("partial", "n", 5)

	if !strings.Contains(first.String(), "write.n=3") || strings.Contains(first.String(), "write.n=5") {
		t.Fatalf("first output = %q", first.String())
	}
	out := second.String()
	if !strings.Contains(out, "component=transport") || !strings.Contains(out, `client="fd 7"`) || !strings.Contains(out, "write.n=5") {
		t.Fatalf("second output = %q", out)
	}
}
