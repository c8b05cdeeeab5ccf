package whatsapp

import (
	"crypto/subtle"

	"github.com/rs/zerolog"
)

const subscribeMode = "subscribe"

// Verifier answers the Cloud API subscription handshake.
type Verifier struct {
	Token  string
	Logger zerolog.Logger
}

// Verify returns the challenge and true only for a subscribe request carrying
// the configured token. An unset token never verifies.
func (v Verifier) Verify(mode, token, challenge string) (string, bool) {
	ok := mode == subscribeMode &&
		v.Token != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(v.Token)) == 1

	ev := v.Logger.Info()
	if !ok {
		ev = v.Logger.Warn()
	}
	ev.Str("mode", mode).Bool("token_present", token != "").Bool("verified", ok).Msg("webhook verification attempt")

	if !ok {
		return "", false
	}
	return challenge, true
}
