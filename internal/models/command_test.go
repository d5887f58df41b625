package models

import "testing"

func TestIsValidCommand(t *testing.T) {
	for _, command := range ValidCommands {
		if !IsValidCommand(command) {
			t.Errorf("IsValidCommand(%q) = false, want true", command)
		}
	}
}

func TestIsValidCommand_Rejected(t *testing.T) {
	rejected := []string{
		"", "Lock", "LOCK", "lock ", "shutdown", "rm -rf", "unlock\n",
	}
	for _, command := range rejected {
		if IsValidCommand(command) {
			t.Errorf("IsValidCommand(%q) = true, want false", command)
		}
	}
}

func TestValidCommands_ClosedSet(t *testing.T) {
	if len(ValidCommands) != 12 {
		t.Errorf("len(ValidCommands) = %d, want 12", len(ValidCommands))
	}
	seen := make(map[string]bool, len(ValidCommands))
	for _, command := range ValidCommands {
		if seen[command] {
			t.Errorf("duplicate command %q in ValidCommands", command)
		}
		seen[command] = true
	}
}
