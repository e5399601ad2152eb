// Package auth is the minimal stand-in for the out-of-scope SQL-backed
// credentials store (SPEC_FULL.md §6/§7, §11): a goleveldb-backed account
// table plus go-jose signed reconnect tickets, implementing
// engine.AuthStore. Grounded on original_source/server/auth.rs's
// register/login validation shape (adapted from SQLite+SipHash to
// goleveldb+stdlib hashing/go-jose, since nothing in the example pack
// wraps either of those directly — see DESIGN.md).
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ErrNameTaken is returned by Register when the requested name already
// has an account.
var ErrNameTaken = errors.New("auth: name already registered")

// ErrNoSuchAccount is returned by Verify when name has no account.
var ErrNoSuchAccount = errors.New("auth: no such account")

// ticketLifetime bounds how long an issued reconnect ticket remains
// valid, per SPEC_FULL.md §7's Login failure taxonomy treating an expired
// credential the same as a bad one.
const ticketLifetime = 24 * time.Hour

// account is the persisted record behind one registered name.
type account struct {
	Name       string
	SecretHash []byte
	Salt       []byte
}

// ticketClaims is the JWT payload signed into every issued reconnect
// ticket.
type ticketClaims struct {
	jwt.Claims
	Name string `json:"name"`
}

// Store is a goleveldb-backed Authenticator: the small keyed-blob
// account table the teacher's world/mcdb plays the equivalent role for
// chunk storage (DESIGN.md's Auth stand-in entry).
type Store struct {
	db     *leveldb.DB
	secret []byte
	signer jose.Signer
}

// Open opens (creating if absent) a Store at path, signing tickets with
// secret (engine.Config.TicketSecret).
func Open(path string, secret []byte) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: open account store: %w", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("auth: init ticket signer: %w", err)
	}
	return &Store{db: db, secret: secret, signer: signer}, nil
}

// Close releases the underlying goleveldb handle.
func (s *Store) Close() error { return s.db.Close() }

// Register creates a new account for name with the given secret. Names
// are not case-folded or otherwise validated, here or elsewhere;
// world/save's name sanitizer only escapes a name into a safe file name.
func (s *Store) Register(name, secret string) error {
	_, err := s.db.Get(accountKey(name), nil)
	if err == nil {
		return ErrNameTaken
	}
	if !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("auth: check existing account: %w", err)
	}

	salt := []byte(uuid.NewString())
	acct := account{Name: name, SecretHash: hashSecret(secret, salt), Salt: salt}
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("auth: encode account: %w", err)
	}
	if err := s.db.Put(accountKey(name), raw, nil); err != nil {
		return fmt.Errorf("auth: write account: %w", err)
	}
	return nil
}

// Verify reports whether secret matches name's registered account.
func (s *Store) Verify(name, secret string) (bool, error) {
	raw, err := s.db.Get(accountKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, ErrNoSuchAccount
	}
	if err != nil {
		return false, fmt.Errorf("auth: read account: %w", err)
	}
	var acct account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return false, fmt.Errorf("auth: decode account: %w", err)
	}
	want := hashSecret(secret, acct.Salt)
	return subtle.ConstantTimeCompare(want, acct.SecretHash) == 1, nil
}

// IssueTicket signs a reconnect ticket for name, good for ticketLifetime,
// carried opaquely by the client between Login attempts (SPEC_FULL.md
// §4.7/§7).
func (s *Store) IssueTicket(name string) (string, error) {
	now := time.Now()
	claims := ticketClaims{
		Claims: jwt.Claims{
			Subject:  name,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ticketLifetime)),
		},
		Name: name,
	}
	tok, err := jwt.Signed(s.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("auth: sign ticket: %w", err)
	}
	return tok, nil
}

// VerifyTicket validates a ticket previously returned by IssueTicket and
// returns the name it was issued for.
func (s *Store) VerifyTicket(ticket string) (string, bool) {
	tok, err := jwt.ParseSigned(ticket, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", false
	}
	var claims ticketClaims
	if err := tok.Claims(s.secret, &claims); err != nil {
		return "", false
	}
	if err := claims.Validate(jwt.Expected{}); err != nil {
		return "", false
	}
	return claims.Name, true
}

func hashSecret(secret string, salt []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return h.Sum(nil)
}

func accountKey(name string) []byte {
	return []byte("account/" + name)
}
