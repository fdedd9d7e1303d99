package validation

import "testing"

func TestValidUsername(t *testing.T) {
	valid := []string{"alice", "alice.b", "a_b-c1", "abc"}
	invalid := []string{"al", ".alice", "alice.", "Alice", "a b", "", "alice@x"}

	for _, s := range valid {
		if !ValidUsername(s) {
			t.Errorf("ValidUsername(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidUsername(s) {
			t.Errorf("ValidUsername(%q) = true, want false", s)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"alice@example.com", "a+b@sub.domain.org"}
	invalid := []string{"", "alice", "@example.com", "a@b", "a b@c.com", "a@@b.com"}

	for _, s := range valid {
		if !ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = true, want false", s)
		}
	}
}

func TestValidIdentifier(t *testing.T) {
	if !ValidIdentifier("alice") || !ValidIdentifier("alice@example.com") {
		t.Fatal("identifier should accept username and email")
	}
	if ValidIdentifier("'; DROP TABLE users --") {
		t.Fatal("garbage accepted as identifier")
	}
}

func TestValidPhone(t *testing.T) {
	if !ValidPhone("+15551234567") {
		t.Fatal("E.164 rejected")
	}
	for _, s := range []string{"15551234567", "+1", "+0123", "phone"} {
		if ValidPhone(s) {
			t.Errorf("ValidPhone(%q) = true, want false", s)
		}
	}
}
