package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces argon2id hashes. It also verifies bcrypt hashes written by
// earlier deployments so those accounts can log in and be upgraded.
type Hasher struct {
	params *argon2id.Params
}

func NewHasher(params *argon2id.Params) *Hasher {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Hasher{params: params}
}

// ParamsFrom fills argon2id parameters from config values, keeping defaults for zeros.
func ParamsFrom(memoryKiB, iterations uint32, parallelism uint8) *argon2id.Params {
	p := *argon2id.DefaultParams
	if memoryKiB > 0 {
		p.Memory = memoryKiB
	}
	if iterations > 0 {
		p.Iterations = iterations
	}
	if parallelism > 0 {
		p.Parallelism = parallelism
	}
	return &p
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := argon2id.CreateHash(plaintext, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify reports whether plaintext matches hash. needsRehash is true when the
// hash is bcrypt or uses argon2id parameters different from the current ones.
func (h *Hasher) Verify(plaintext, hash string) (ok, needsRehash bool, err error) {
	if isBcrypt(hash) {
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
		switch {
		case err == nil:
			return true, true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, false, nil
		default:
			return false, false, fmt.Errorf("verify bcrypt hash: %w", err)
		}
	}

	match, err := argon2id.ComparePasswordAndHash(plaintext, hash)
	if err != nil {
		return false, false, fmt.Errorf("verify argon2id hash: %w", err)
	}
	if !match {
		return false, false, nil
	}
	params, _, _, err := argon2id.DecodeHash(hash)
	if err != nil {
		return true, false, nil
	}
	stale := params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength
	return true, stale, nil
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
