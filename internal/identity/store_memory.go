package identity

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"vcgate/pkg/platform/sentinel"
)

// User is an API credential holder. Passwords are stored as bcrypt hashes.
type User struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	Roles        []string `json:"roles"`
}

// InMemoryUserStore keeps API users in memory. The set is loaded once at
// startup; Authenticate is the only hot-path method.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]User)}
}

// LoadUserFile reads a JSON array of users into a fresh store.
func LoadUserFile(path string) (*InMemoryUserStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, err
	}
	store := NewInMemoryUserStore()
	for _, u := range users {
		store.Put(u)
	}
	return store, nil
}

// Put inserts or replaces a user.
func (s *InMemoryUserStore) Put(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
}

// PutWithPassword hashes the plaintext password and stores the user. Intended
// for tests and dev bootstrap, not for bulk loading.
func (s *InMemoryUserStore) PutWithPassword(username, password string, roles []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.Put(User{Username: username, PasswordHash: string(hash), Roles: roles})
	return nil
}

// Authenticate checks the password against the stored bcrypt hash and returns
// the user's roles. Unknown users and wrong passwords are indistinguishable
// to the caller.
func (s *InMemoryUserStore) Authenticate(_ context.Context, username, password string) (User, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		// Burn a comparison anyway so missing users cost the same as bad
		// passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000"), []byte(password))
		return User{}, sentinel.ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, sentinel.ErrNotFound
	}
	return user, nil
}
