package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserValidate(t *testing.T) {
	valid := User{Username: "alice01"}
	assert.NoError(t, valid.Validate())

	cases := map[string]User{
		"username too short": {Username: "abc"},
		"username too long":  {Username: "a123456789012345678901234567890123456789012345678901"},
		"username not alnum": {Username: "alice 01"},
		"fullname too short": {Username: "alice01", Fullname: "Al"},
		"fullname too long":  {Username: "alice01", Fullname: "A name far too long to fit in here"},
	}
	for name, u := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, u.Validate(), ErrInvalidUser)
		})
	}

	withFullname := User{Username: "alice01", Fullname: "Alice Liddell"}
	assert.NoError(t, withFullname.Validate())

	// 22 runes but 42 bytes; the fullname ceiling counts runes.
	multibyte := User{Username: "alice01", Fullname: "Αλίκη Λίντελ-Χάργκρηβς"}
	assert.NoError(t, multibyte.Validate())
}

func TestSessionPayloadValidate(t *testing.T) {
	valid := &SessionPayload{OID: "abc-1", UserID: "5f1a"}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, (&SessionPayload{UserID: "5f1a"}).Validate(), ErrInvalidSession)
	assert.ErrorIs(t, (&SessionPayload{OID: "abc-1"}).Validate(), ErrInvalidSession)
	var nilPayload *SessionPayload
	assert.ErrorIs(t, nilPayload.Validate(), ErrInvalidSession)
}

func TestClaimsValidate(t *testing.T) {
	valid := Claims{Subject: "abc-1", PreferredUsername: "alice01"}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, Claims{PreferredUsername: "alice01"}.Validate(), ErrMissingSubject)
	assert.ErrorIs(t, Claims{Subject: "abc-1"}.Validate(), ErrMissingUsername)
}
