package protocol

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/standardbeagle/sccd/internal/source"
)

func TestFormatHandshake(t *testing.T) {
	got := string(FormatHandshake(Hello{
		Version:         "0.4.0",
		PID:             4242,
		Profile:         "/p/Desktop.sccprofile",
		ControllerCount: 1,
	}))
	want := "SCCDaemon\nVersion: 0.4.0\nPID: 4242\nCurrent profile: /p/Desktop.sccprofile\nController count: 1\nReady.\n"
	if got != want {
		t.Errorf("handshake =\n%q\nwant\n%q", got, want)
	}

	got = string(FormatHandshake(Hello{Version: "0.4.0", PID: 1, Err: "no device"}))
	if !bytes.HasSuffix([]byte(got), []byte("Error: no device\n")) {
		t.Errorf("handshake should end with error line, got %q", got)
	}
}

func TestFormatFail_SingleLine(t *testing.T) {
	got := string(FormatFail("line one\nline two"))
	if got != "Fail: line one\\nline two\n" {
		t.Errorf("FormatFail = %q", got)
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		src    source.Source
		values []int
		want   string
	}{
		{source.A, []int{1}, "Event: A 1\n"},
		{source.StickPress, []int{0}, "Event: STICKPRESS 0\n"},
		{source.LT, []int{255, 10}, "Event: LT 255 10\n"},
		{source.Stick, []int{-3000, 400}, "Event: STICK -3000 400\n"},
	}
	for _, tt := range tests {
		if got := string(FormatEvent(tt.src, tt.values...)); got != tt.want {
			t.Errorf("FormatEvent(%v, %v) = %q, want %q", tt.src, tt.values, got, tt.want)
		}
	}
}

func TestParseEvent(t *testing.T) {
	name, values, ok := ParseEvent("Event: LEFT 400 -12")
	if !ok || name != "LEFT" || !reflect.DeepEqual(values, []int{400, -12}) {
		t.Errorf("ParseEvent = %q %v %v", name, values, ok)
	}
	if _, _, ok := ParseEvent("OK."); ok {
		t.Error("OK. is not an event")
	}
	if _, _, ok := ParseEvent("Event: A"); ok {
		t.Error("event without value should not parse")
	}
}

func TestOSDRequestRoundTrip(t *testing.T) {
	args := []string{"message", "-t", "5", "it's a \"test\" message"}
	line := FormatOSDRequest(args...)
	if !bytes.HasPrefix(line, []byte("OSD: message -t 5 ")) {
		t.Errorf("unexpected request %q", line)
	}
	got, err := ParseOSDRequest(string(bytes.TrimRight(line, "\n")))
	if err != nil {
		t.Fatalf("ParseOSDRequest: %v", err)
	}
	if !reflect.DeepEqual(got, args) {
		t.Errorf("round trip = %q, want %q", got, args)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_ = w.WriteOK()
	_ = w.WriteFail("Cannot lock A")
	_ = w.WriteLine("Lock: A")
	_ = w.WriteRaw(FormatReconfigured())
	want := "OK.\nFail: Cannot lock A\nLock: A\nReconfigured.\n"
	if buf.String() != want {
		t.Errorf("writer output = %q, want %q", buf.String(), want)
	}
}
