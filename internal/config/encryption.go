package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"medallion/pkg/models"
)

// Encrypted values are stored as ENC[<base64 ciphertext>] so a config file
// can mix plaintext and encrypted fields and Load can tell them apart.
const (
	encryptedPrefix = "ENC["
	encryptedSuffix = "]"
)

// getEncryptionKey derives the AES key. MEDALLION_ENCRYPTION_KEY wins when
// set; otherwise the key is machine-derived, so an encrypted config only
// decrypts on the host that wrote it.
func getEncryptionKey() []byte {
	if key := os.Getenv("MEDALLION_ENCRYPTION_KEY"); key != "" {
		hash := sha256.Sum256([]byte(key))
		return hash[:]
	}

	hostname, _ := os.Hostname()
	homeDir, _ := os.UserHomeDir()
	machineID := fmt.Sprintf("%s-%s-medallion", hostname, homeDir)
	hash := sha256.Sum256([]byte(machineID))
	return hash[:]
}

// EncryptPassword encrypts a warehouse password with AES-256-GCM. Empty and
// already-encrypted values pass through unchanged, so re-running the encrypt
// command is harmless.
func EncryptPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if IsEncrypted(password) {
		return password, nil
	}

	key := getEncryptionKey()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(password), nil)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	return fmt.Sprintf("%s%s%s", encryptedPrefix, encoded, encryptedSuffix), nil
}

// DecryptPassword reverses EncryptPassword. Values without the ENC[] marker
// pass through unchanged.
func DecryptPassword(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	if !IsEncrypted(encrypted) {
		return encrypted, nil
	}

	encoded := strings.TrimPrefix(encrypted, encryptedPrefix)
	encoded = strings.TrimSuffix(encoded, encryptedSuffix)

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted password: %w", err)
	}

	key := getEncryptionKey()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password: %w", err)
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether a value carries the ENC[] marker.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix) && strings.HasSuffix(value, encryptedSuffix)
}

// EncryptConfigPasswords encrypts the Snowflake password in place before the
// config is written to disk.
func EncryptConfigPasswords(config *models.Config) error {
	if config.Snowflake.Password != "" && !IsEncrypted(config.Snowflake.Password) {
		encrypted, err := EncryptPassword(config.Snowflake.Password)
		if err != nil {
			return fmt.Errorf("failed to encrypt Snowflake password: %w", err)
		}
		config.Snowflake.Password = encrypted
	}
	return nil
}

// DecryptConfigPasswords resolves the Snowflake password in place after the
// config is read from disk.
func DecryptConfigPasswords(config *models.Config) error {
	if IsEncrypted(config.Snowflake.Password) {
		decrypted, err := DecryptPassword(config.Snowflake.Password)
		if err != nil {
			return fmt.Errorf("failed to decrypt Snowflake password: %w", err)
		}
		config.Snowflake.Password = decrypted
	}
	return nil
}
