// Package credentials stores warehouse passwords outside the config file,
// in the OS keyring when one is reachable and in an encrypted file vault
// otherwise. Config values of the form "@credential:name" resolve here.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"medallion/internal/common"
)

const (
	keyringService   = "medallion"
	saltSize         = 32
	pbkdf2Iterations = 100000
	keySize          = 32 // AES-256
)

// Vault stores and retrieves named secrets.
type Vault struct {
	useKeyring bool
	masterKey  []byte
}

// NewVault opens the credential store, deriving the file-vault master key
// when no system keyring is available.
func NewVault() (*Vault, error) {
	v := &Vault{useKeyring: keyringAvailable()}

	if !v.useKeyring {
		key, err := v.loadMasterKey()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize master key: %w", err)
		}
		v.masterKey = key
	}
	return v, nil
}

// Set stores a secret under name.
func (v *Vault) Set(name, value string) error {
	if v.useKeyring {
		if err := keyring.Set(keyringService, name, value); err != nil {
			return fmt.Errorf("failed to store in keyring: %w", err)
		}
		return nil
	}

	encrypted, err := v.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	if err := os.MkdirAll(v.dir(), 0700); err != nil {
		return err
	}
	path, err := common.ValidatePath(v.path(name), v.dir())
	if err != nil {
		return fmt.Errorf("invalid credential path: %w", err)
	}
	return os.WriteFile(path, []byte(encrypted), 0600)
}

// Get retrieves the secret stored under name.
func (v *Vault) Get(name string) (string, error) {
	if v.useKeyring {
		value, err := keyring.Get(keyringService, name)
		if err != nil {
			return "", fmt.Errorf("failed to get from keyring: %w", err)
		}
		return value, nil
	}

	path, err := common.ValidatePath(v.path(name), v.dir())
	if err != nil {
		return "", fmt.Errorf("invalid credential path: %w", err)
	}
	data, err := os.ReadFile(path) // #nosec G304 - path is validated
	if err != nil {
		return "", err
	}
	return v.decrypt(string(data))
}

// Delete removes the secret stored under name.
func (v *Vault) Delete(name string) error {
	if v.useKeyring {
		return keyring.Delete(keyringService, name)
	}
	path, err := common.ValidatePath(v.path(name), v.dir())
	if err != nil {
		return fmt.Errorf("invalid credential path: %w", err)
	}
	return os.Remove(path)
}

// List returns the names stored in the file vault. Keyring backends do not
// support enumeration, so an empty list comes back there.
func (v *Vault) List() ([]string, error) {
	if v.useKeyring {
		return nil, nil
	}

	entries, err := os.ReadDir(v.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cred") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".cred"))
		}
	}
	return names, nil
}

func (v *Vault) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.masterKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (v *Vault) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(v.masterKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// loadMasterKey reads the stored master key, generating one on first use.
// The key is derived from a machine identifier with PBKDF2 and stored next
// to the credentials as salt plus key.
func (v *Vault) loadMasterKey() ([]byte, error) {
	keyPath := filepath.Join(v.dir(), ".master")

	validated, err := common.ValidatePath(keyPath, v.dir())
	if err != nil {
		return nil, fmt.Errorf("invalid master key path: %w", err)
	}

	data, err := os.ReadFile(validated) // #nosec G304 - path is validated
	if err == nil {
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(v.dir(), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(validated, append(salt, key...), 0600); err != nil { // #nosec G304
		return nil, err
	}
	return key, nil
}

func (v *Vault) dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medallion", "credentials")
}

func (v *Vault) path(name string) string {
	return filepath.Join(v.dir(), name+".cred")
}

func keyringAvailable() bool {
	if os.Getenv("MEDALLION_USE_KEYCHAIN") == "false" {
		return false
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

func machineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	data := fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)
	hash := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(hash[:])
}
