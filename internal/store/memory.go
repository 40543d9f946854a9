// Package store holds every account and message the process knows about.
// It is volatile by design: state lives in maps guarded by a single mutex
// and is rebuilt (optionally with fixture accounts) on start.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	mu            sync.Mutex
	accounts      map[int]Account
	messages      map[int]Message
	nextAccountID int
	nextMessageID int

	// now is swapped out by tests that need deterministic timestamps.
	now func() time.Time
}

func New() *Store {
	return &Store{
		accounts:      make(map[int]Account),
		messages:      make(map[int]Message),
		nextAccountID: 1,
		nextMessageID: 1,
		now:           time.Now,
	}
}

// Seed installs the demo accounts the original deployment shipped with.
func (s *Store) Seed() {
	for _, username := range []string{"john.doe", "dev", "support"} {
		s.CreateAccount(username, "openmail.org", username+"@openmail.org", "password123")
	}
}

// CreateAccount assigns the next account id. Uniqueness of the email is the
// caller's responsibility; check GetAccountByEmail first.
func (s *Store) CreateAccount(username, domain, email, password string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := Account{
		ID:        s.nextAccountID,
		Username:  username,
		Domain:    domain,
		Email:     email,
		Password:  password,
		CreatedAt: s.now(),
	}
	s.nextAccountID++
	s.accounts[account.ID] = account
	return account
}

func (s *Store) GetAccounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

func (s *Store) GetAccount(id int) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	return account, ok
}

// GetAccountByEmail matches case-insensitively.
func (s *Store) GetAccountByEmail(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if strings.EqualFold(account.Email, email) {
			return account, true
		}
	}
	return Account{}, false
}

// CreateMessage assigns the next message id and receipt timestamp. The
// account must exist; messages for unknown accounts are never persisted.
func (s *Store) CreateMessage(msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[msg.AccountID]; !ok {
		return Message{}, ErrNotFound
	}

	msg.ID = s.nextMessageID
	s.nextMessageID++
	msg.ReceivedAt = s.now()
	msg.Read = false
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

// GetMessages returns the account's messages newest first; equal timestamps
// fall back to id order.
func (s *Store) GetMessages(accountID int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, 0)
	for _, msg := range s.messages {
		if msg.AccountID == accountID {
			messages = append(messages, msg)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].ReceivedAt.Equal(messages[j].ReceivedAt) {
			return messages[i].ReceivedAt.After(messages[j].ReceivedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages
}

func (s *Store) GetMessage(id int) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	return msg, ok
}

// MarkRead flips a message to read. The transition is one-way and calling it
// again on a read message is a no-op.
func (s *Store) MarkRead(id int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	msg.Read = true
	s.messages[id] = msg
	return msg, nil
}

// UnreadCount is recomputed on every call rather than cached.
func (s *Store) UnreadCount(accountID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msg := range s.messages {
		if msg.AccountID == accountID && !msg.Read {
			count++
		}
	}
	return count
}
