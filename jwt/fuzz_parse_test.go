package jwt

import (
	"testing"
	"time"
)

// FuzzValidateAccessToken exercises the parser with arbitrary token strings.
// Invalid inputs must be rejected with one of the typed errors and never panic.
func FuzzValidateAccessToken(f *testing.F) {
	issuer, err := NewIssuer(Config{
		AccessTTL:  5 * time.Minute,
		SigningKey: []byte("fuzz-fuzz-fuzz-fuzz-fuzz-fuzz-32"),
		Issuer:     "fuzz-test",
		Audience:   "fuzz-aud",
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, _, err := issuer.IssueAccessToken("uid1", "fuzz@example.com", "attendee")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := issuer.ValidateAccessToken(token)
		if err == nil && claims == nil {
			t.Fatal("nil claims without error")
		}
		if err != nil && claims != nil {
			t.Fatal("claims returned alongside error")
		}
	})
}
