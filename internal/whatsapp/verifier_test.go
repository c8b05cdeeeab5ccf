package whatsapp

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestVerify(t *testing.T) {
	v := Verifier{Token: "s3cret", Logger: zerolog.Nop()}

	tests := []struct {
		name      string
		mode      string
		token     string
		challenge string
		want      string
		wantOK    bool
	}{
		{name: "valid", mode: "subscribe", token: "s3cret", challenge: "1158201444", want: "1158201444", wantOK: true},
		{name: "challenge echoed verbatim", mode: "subscribe", token: "s3cret", challenge: " a b\n", want: " a b\n", wantOK: true},
		{name: "wrong token", mode: "subscribe", token: "nope", challenge: "x"},
		{name: "wrong mode", mode: "unsubscribe", token: "s3cret", challenge: "x"},
		{name: "empty mode", token: "s3cret", challenge: "x"},
		{name: "token prefix", mode: "subscribe", token: "s3cre", challenge: "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				got, ok := v.Verify(tc.mode, tc.token, tc.challenge)
				if ok != tc.wantOK || got != tc.want {
					t.Fatalf("attempt %d: Verify()=(%q,%v), expected (%q,%v)", i, got, ok, tc.want, tc.wantOK)
				}
			}
		})
	}
}

func TestVerifyUnsetTokenNeverMatches(t *testing.T) {
	v := Verifier{Logger: zerolog.Nop()}
	if _, ok := v.Verify("subscribe", "", "challenge"); ok {
		t.Fatalf("expected verification to fail without a configured token")
	}
}
