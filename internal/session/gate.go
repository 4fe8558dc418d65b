package session

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"despesas/internal/core"
	"despesas/internal/log"
)

var (
	ErrWrongPIN    = errors.New("wrong PIN")
	ErrPINRequired = errors.New("PIN not verified")
	ErrNotLoggedIn = errors.New("no user selected")
)

// Users resolves catalog user ids.
type Users interface {
	User(id string) (core.User, bool)
}

// Gate guards the client behind a shared PIN and remembers the acting user.
type Gate struct {
	store  Store
	users  Users
	hash   []byte
	logger *log.Logger
}

// HashPIN hashes a plain PIN for comparison.
func HashPIN(pin string) ([]byte, error) {
	if pin == "" {
		return nil, errors.New("empty PIN")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash PIN: %w", err)
	}
	return h, nil
}

// NewGate builds a gate checking PINs against a bcrypt hash.
func NewGate(store Store, users Users, pinHash []byte, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Discard()
	}
	return &Gate{
		store:  store,
		users:  users,
		hash:   pinHash,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// Verified reports whether the PIN has been accepted on this device.
func (g *Gate) Verified() bool {
	v, _ := g.store.Get(KeyPINVerified)
	ok, _ := strconv.ParseBool(v)
	return ok
}

// VerifyPIN checks pin and remembers a success.
func (g *Gate) VerifyPIN(pin string) error {
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(pin)); err != nil {
		g.logger.Warn("PIN rejected", log.FieldErrorType, log.ErrorTypeAuth)
		return ErrWrongPIN
	}
	return g.store.Set(KeyPINVerified, "true")
}

// Login selects the acting user. The PIN must have been verified first.
func (g *Gate) Login(userID string) (core.User, error) {
	if !g.Verified() {
		return core.User{}, ErrPINRequired
	}
	u, ok := g.users.User(userID)
	if !ok {
		return core.User{}, fmt.Errorf("%w: %q", core.ErrUnknownUser, userID)
	}
	if err := g.store.Set(KeyUserID, u.ID); err != nil {
		return core.User{}, err
	}
	g.logger.Info("logged in", log.FieldUserID, u.ID)
	return u, nil
}

// Logout forgets the user and the PIN confirmation.
func (g *Gate) Logout() error {
	if err := g.store.Delete(KeyUserID, KeyPINVerified); err != nil {
		return err
	}
	g.logger.Info("logged out")
	return nil
}

// CurrentUser returns the remembered user. A saved id that no longer
// exists in the catalog counts as logged out.
func (g *Gate) CurrentUser() (core.User, error) {
	id, ok := g.store.Get(KeyUserID)
	if !ok || id == "" {
		return core.User{}, ErrNotLoggedIn
	}
	u, ok := g.users.User(id)
	if !ok {
		return core.User{}, ErrNotLoggedIn
	}
	return u, nil
}
