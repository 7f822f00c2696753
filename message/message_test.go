package message

import (
	"errors"
	"testing"
)

func TestFaultReply(t *testing.T) {
	cause := errors.New("unknown opcode")
	r := FaultReply(cause)
	if r.Outcome != Fault {
		t.Fatalf("expect Fault, got %s", r.Outcome)
	}
	if r.Frame != nil {
		t.Fatal("a fault must not carry a frame")
	}
	if !errors.Is(r.Err, cause) {
		t.Fatalf("expect cause to be kept, got %v", r.Err)
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{OK: "ok", Failed: "failed", Fault: "fault", 9: "outcome(9)"} {
		if o.String() != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", uint8(o), o.String(), want)
		}
	}
}
