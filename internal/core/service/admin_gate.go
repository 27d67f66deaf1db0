package service

import "crypto/subtle"

// AdminGate checks the single configured back-office credential pair.
type AdminGate struct {
	email    string
	password string
}

func NewAdminGate(email, password string) *AdminGate {
	return &AdminGate{email: email, password: password}
}

func (g *AdminGate) Authenticate(email, password string) error {
	if g.email == "" || g.password == "" {
		return ErrUnauthorized
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(g.email)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	if !emailOK || !passwordOK {
		return ErrUnauthorized
	}
	return nil
}
