package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted stage files carry a salt and nonce header ahead of the
// AES-256-GCM ciphertext.
const (
	saltSize        = 16
	pbkdf2Iters     = 600000
	encryptedSuffix = ".enc"
)

// Encryptor seals and opens stage files with a passphrase-derived
// AES-256-GCM key.
type Encryptor struct {
	passphrase string
}

// NewEncryptor creates an encryptor for the given passphrase.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase must not be empty")
	}
	return &Encryptor{passphrase: passphrase}, nil
}

func (e *Encryptor) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, pbkdf2Iters, 32, sha256.New)
}

// Seal encrypts data and prepends the salt and nonce needed to open it.
func (e *Encryptor) Seal(data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(e.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var out bytes.Buffer
	out.Write(salt)
	out.Write(nonce)
	out.Write(gcm.Seal(nil, nonce, data, nil))
	return out.Bytes(), nil
}

// Open decrypts data produced by Seal. A wrong passphrase surfaces as an
// authentication failure, not garbage output.
func (e *Encryptor) Open(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, fmt.Errorf("encrypted payload too short")
	}
	salt, rest := data[:saltSize], data[saltSize:]

	block, err := aes.NewCipher(e.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted payload too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plain, nil
}

// SealFile encrypts path into path+".enc" and removes the plaintext file.
// Returns the new path.
func (e *Encryptor) SealFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read stage file: %w", err)
	}

	sealed, err := e.Seal(data)
	if err != nil {
		return "", err
	}

	sealedPath := path + encryptedSuffix
	if err := os.WriteFile(sealedPath, sealed, 0o600); err != nil {
		return "", fmt.Errorf("write sealed file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove plaintext file: %w", err)
	}
	return sealedPath, nil
}

// OpenArtifact opens a stage file for reading as plain SQL, decrypting and
// decompressing based on the file's suffixes. The encryptor may be nil when
// the path carries no ".enc" suffix.
func OpenArtifact(path string, enc *Encryptor) (io.ReadCloser, error) {
	if strings.HasSuffix(path, encryptedSuffix) {
		if enc == nil {
			return nil, fmt.Errorf("stage file %s is encrypted and no passphrase was provided", path)
		}
		sealed, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stage file: %w", err)
		}
		plain, err := enc.Open(sealed)
		if err != nil {
			return nil, err
		}
		return ForPath(path).NewReader(bytes.NewReader(plain))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stage file: %w", err)
	}
	decoded, err := ForPath(path).NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileReadCloser{ReadCloser: decoded, file: f}, nil
}

// fileReadCloser closes both the decoding layer and the backing file.
type fileReadCloser struct {
	io.ReadCloser
	file *os.File
}

func (frc *fileReadCloser) Close() error {
	err := frc.ReadCloser.Close()
	if ferr := frc.file.Close(); err == nil {
		err = ferr
	}
	return err
}
