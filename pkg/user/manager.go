// Package user keeps the accounts allowed to subscribe to the event
// broadcast. Accounts live in a password file with one "name:bcrypt-hash"
// line per user.
package user

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidUsername     = errors.New("username is invalid. it can contains letters, numbers and underscores but should starts with a letter")
	ErrUsernameExists      = errors.New("username exists")
	ErrUnknownUser         = errors.New("unknown user")
	ErrBadPassword         = errors.New("password does not match")
	ErrAlreadyLoggedIn     = errors.New("user already has an active session")
	ErrPwFileContentFormat = errors.New("something is wrong with the password file content format")
)

const (
	columnSep  = ":"
	hashCost   = 14
	pwFileMode = 0600
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z]\w*$`)

type Credential struct {
	Username string
	Password string
}

type Option func(m *Manager)

// WithHashCost sets the bcrypt cost for new passwords.
func WithHashCost(cost int) Option {
	return func(m *Manager) {
		m.cost = cost
	}
}

type Manager struct {
	pwFile string
	cost   int

	mu       sync.RWMutex
	users    map[string]string // username -> password hash
	sessions map[string]string // username -> remote host
}

// NewManager loads pwFile, creating it when missing.
func NewManager(pwFile string, options ...Option) (*Manager, error) {
	m := &Manager{
		pwFile:   pwFile,
		cost:     hashCost,
		sessions: make(map[string]string),
	}
	for _, op := range options {
		op(m)
	}

	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load rereads the password file. Active sessions are kept.
func (m *Manager) Load() error {
	f, err := os.OpenFile(m.pwFile, os.O_CREATE|os.O_RDONLY, pwFileMode)
	if err != nil {
		return err
	}
	defer f.Close()

	users := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), columnSep)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			subErr := fmt.Errorf("(len: %d, fields: %v)", len(fields), fields)
			return errors.Join(ErrPwFileContentFormat, subErr)
		}
		users[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.users = users
	m.mu.Unlock()
	return nil
}

func (m *Manager) Exists(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[username]
	return ok
}

// Add appends a new account to the password file.
func (m *Manager) Add(cred Credential) error {
	if !usernameRegex.MatchString(cred.Username) {
		return ErrInvalidUsername
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[cred.Username]; ok {
		return ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), m.cost)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(m.pwFile, os.O_APPEND|os.O_WRONLY, pwFileMode)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(cred.Username + columnSep + string(hash) + "\n"); err != nil {
		return err
	}

	m.users[cred.Username] = string(hash)
	return nil
}

// Delete removes an account. Deleting an unknown user is not an error.
func (m *Manager) Delete(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[username]; !ok {
		return nil
	}

	original, err := os.Open(m.pwFile)
	if err != nil {
		return err
	}
	defer original.Close()

	tmp, err := os.CreateTemp(filepath.Dir(m.pwFile), "pwfile_*.tmp")
	if err != nil {
		return err
	}
	defer tmp.Close()
	defer os.Remove(tmp.Name())

	scanner := bufio.NewScanner(original)
	writer := bufio.NewWriter(tmp)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, columnSep)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" || fields[0] == username {
			continue
		}
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), m.pwFile); err != nil {
		return err
	}
	if err := os.Chmod(m.pwFile, pwFileMode); err != nil {
		return err
	}

	delete(m.users, username)
	delete(m.sessions, username)
	return nil
}

// Login checks the password and opens the single session a user may hold.
func (m *Manager) Login(username, password, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.users[username]
	if !ok {
		return ErrUnknownUser
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrBadPassword
	}
	if active, ok := m.sessions[username]; ok {
		return errors.Join(ErrAlreadyLoggedIn, fmt.Errorf("from %s", active))
	}

	m.sessions[username] = host
	return nil
}

func (m *Manager) Logout(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, username)
}

// Session returns the host a user is logged in from.
func (m *Manager) Session(username string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host, ok := m.sessions[username]
	return host, ok
}
