package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var errHashFormat = errors.New("password hash: unexpected format")

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var defaultParams = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

// argonHash is a decoded $argon2id$ PHC string.
type argonHash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func (h argonHash) encode() []byte {
	b64 := base64.StdEncoding
	return []byte(fmt.Sprintf("$argon2id$v=%d$t=%d,m=%d,p=%d$%s$%s",
		argon2.Version, h.params.Time, h.params.Memory, h.params.Threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key)))
}

func decodeArgonHash(encoded []byte) (argonHash, error) {
	parts := strings.Split(string(encoded), "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argonHash{}, errHashFormat
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return argonHash{}, fmt.Errorf("password hash: unsupported version %q", parts[2])
	}

	var h argonHash
	if _, err := fmt.Sscanf(parts[3], "t=%d,m=%d,p=%d", &h.params.Time, &h.params.Memory, &h.params.Threads); err != nil {
		return argonHash{}, fmt.Errorf("password hash params: %w", err)
	}
	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil {
		return argonHash{}, fmt.Errorf("password hash salt: %w", err)
	}
	if h.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil {
		return argonHash{}, fmt.Errorf("password hash key: %w", err)
	}
	if len(h.key) == 0 {
		return argonHash{}, errHashFormat
	}
	return h, nil
}

func HashPassword(password string) ([]byte, error) {
	return HashPasswordWithParams(password, defaultParams)
}

func HashPasswordWithParams(password string, params Argon2Params) ([]byte, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	h := argonHash{
		params: params,
		salt:   salt,
		key:    argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen),
	}
	return h.encode(), nil
}

// VerifyPassword reports a mismatch as (false, nil); an error means the
// stored hash could not be read.
func VerifyPassword(password string, encodedHash []byte) (bool, error) {
	h, err := decodeArgonHash(encodedHash)
	if err != nil {
		return false, err
	}
	p := h.params
	computed := argon2.IDKey([]byte(password), h.salt, p.Time, p.Memory, p.Threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(h.key, computed) == 1, nil
}
