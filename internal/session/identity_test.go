package session

import "testing"

func TestInferSessionID_SanitizedFormat(t *testing.T) {
	id, err := InferSessionID()
	if err != nil {
		t.Fatalf("InferSessionID: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty session id")
	}
	for _, r := range id {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.'
		if !ok {
			t.Errorf("session id %q contains unsanitized character %q", id, r)
		}
	}
}

func TestMachineID_NeverEmpty(t *testing.T) {
	if MachineID() == "" {
		t.Error("expected a non-empty machine id even when protected id lookup fails")
	}
}
