package models

import "testing"

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatePending, StateActive, true},
		{StatePending, StateLocked, false},
		{StatePending, StateRemoved, false},

		{StateActive, StateLocked, true},
		{StateActive, StateRemoved, true},
		{StateActive, StatePending, false},
		{StateActive, StateUnassigned, false},

		{StateLocked, StateActive, true},
		{StateLocked, StateRemoved, true},
		{StateLocked, StatePending, false},

		{StateUnassigned, StateActive, true},
		{StateUnassigned, StateLocked, false},
		{StateUnassigned, StateRemoved, false},

		// REMOVED is terminal
		{StateRemoved, StateActive, false},
		{StateRemoved, StateLocked, false},
		{StateRemoved, StatePending, false},
		{StateRemoved, StateRemoved, false},

		// Self-transitions are not moves
		{StateActive, StateActive, false},
		{StateLocked, StateLocked, false},

		{"GARBAGE", StateActive, false},
		{StateActive, "GARBAGE", false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsValidEnrollmentType(t *testing.T) {
	for _, et := range ValidEnrollmentTypes {
		if !IsValidEnrollmentType(et) {
			t.Errorf("IsValidEnrollmentType(%q) = false, want true", et)
		}
	}
	for _, et := range []string{"", "android_new", "WINDOWS"} {
		if IsValidEnrollmentType(et) {
			t.Errorf("IsValidEnrollmentType(%q) = true, want false", et)
		}
	}
}

func TestCustomerLockInfo_Defaults(t *testing.T) {
	c := &Customer{}
	info := c.LockInfo()
	if info.Message != DefaultLockMessage {
		t.Errorf("Message = %q, want default", info.Message)
	}
	if info.Phone != DefaultSupportPhone {
		t.Errorf("Phone = %q, want default", info.Phone)
	}

	c.LockMessage = "Pay your dues"
	c.SupportPhone = "1234567890"
	info = c.LockInfo()
	if info.Message != "Pay your dues" {
		t.Errorf("Message = %q, want configured value", info.Message)
	}
	if info.Phone != "1234567890" {
		t.Errorf("Phone = %q, want configured value", info.Phone)
	}
}
