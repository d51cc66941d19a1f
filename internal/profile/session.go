package profile

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yagualauncher/yagua/internal/utils"
)

var (
	ErrInvalidUsername = errors.New("profile: username must be 1-16 letters, digits or underscores")
	ErrNoSession       = errors.New("profile: not logged in")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
)

// Session identifies the player passed to the application.
type Session struct {
	Username  string    `json:"username"`
	UUID      string    `json:"uuid"`
	Offline   bool      `json:"offline"`
	CreatedAt time.Time `json:"createdAt"`
}

// Offline creates a session whose UUID is derived from the username alone, so
// the same name always maps to the same player.
func Offline(username string) (Session, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return Session{}, ErrInvalidUsername
	}
	return Session{
		Username:  username,
		UUID:      OfflineUUID(username).String(),
		Offline:   true,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// OfflineUUID is the version 3 UUID of md5("OfflinePlayer:"+username) without
// a namespace.
func OfflineUUID(username string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	id, _ := uuid.FromBytes(sum[:])
	return id
}

func SaveSession(s Session, path string) error {
	data, err := utils.JSONMarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: encode session: %w", err)
	}
	if err := utils.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("profile: save session: %w", err)
	}
	return nil
}

// LoadSession returns ErrNoSession when no session was saved.
func LoadSession(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("profile: load session: %w", err)
	}
	var s Session
	if err := utils.JSONUnmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("profile: decode session: %w", err)
	}
	if s.Username == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("profile: clear session: %w", err)
	}
	return nil
}
