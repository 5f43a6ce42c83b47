package auth

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Gate checks the shared operator passcode and issues session tokens.
type Gate struct {
	passcode  []byte
	hashed    bool
	secretKey []byte
	validity  time.Duration
}

// NewGate accepts either a plain passcode or a bcrypt hash of it (any value
// starting with "$2").
func NewGate(passcode, secretKey string, validity time.Duration) *Gate {
	return &Gate{
		passcode:  []byte(passcode),
		hashed:    strings.HasPrefix(passcode, "$2"),
		secretKey: []byte(secretKey),
		validity:  validity,
	}
}

// Login exchanges a passcode for a session token. A wrong passcode yields
// common.ErrorUnauthorized.
func (g *Gate) Login(passcode string) (string, error) {
	if !g.check(passcode) {
		return "", common.ErrorUnauthorized
	}
	return GenerateToken(RoleOperator, g.secretKey, g.validity)
}

// Verify reports whether token is a valid, unexpired session token.
func (g *Gate) Verify(token string) error {
	_, err := ParseToken(token, g.secretKey)
	return err
}

func (g *Gate) check(passcode string) bool {
	if passcode == "" {
		return false
	}
	if g.hashed {
		return bcrypt.CompareHashAndPassword(g.passcode, []byte(passcode)) == nil
	}
	return subtle.ConstantTimeCompare(g.passcode, []byte(passcode)) == 1
}
