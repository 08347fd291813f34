package bank

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength     = 16
	iterationCount = 4096
	keyLength      = 32
)

// credentialEntry is the shape of one user record in the read-only credential
// bootstrap file.
type credentialEntry struct {
	Password string `json:"password"`
	Balance  int64  `json:"balance"`
}

// hashPassword derives a salt and stored key for password: pbkdf2 over the
// password, then an HMAC-derived stored key so the raw pbkdf2 output is
// never persisted directly.
func hashPassword(password string) (salt, storedKey []byte, err error) {
	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterationCount, keyLength, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey = sha256Sum(clientKey)
	return salt, storedKey, nil
}

// verifyPassword recomputes the stored key from password+salt and compares
// it against storedKey in constant time.
func verifyPassword(password string, salt, storedKey []byte) bool {
	saltedPassword := pbkdf2.Key([]byte(password), salt, iterationCount, keyLength, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	candidate := sha256Sum(clientKey)
	return hmac.Equal(candidate, storedKey)
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// LoadCredentials reads the credential bootstrap file at path and populates l
// with freshly hashed user accounts. Called only when no state file exists
// yet.
func (l *Ledger) LoadCredentials(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	var entries map[string]credentialEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse credential file %s: %w", path, err)
	}

	for username, entry := range entries {
		salt, storedKey, err := hashPassword(entry.Password)
		if err != nil {
			return fmt.Errorf("failed to hash credentials for %s: %w", username, err)
		}
		l.addUser(&User{
			Username:  username,
			Salt:      salt,
			StoredKey: storedKey,
			Balance:   entry.Balance,
			History:   nil,
		})
	}

	return nil
}
