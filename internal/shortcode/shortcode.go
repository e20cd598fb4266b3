// Package shortcode generates the short codes that identify URLs.
//
// Two strategies exist. Base62 deterministically encodes the salted URL
// id; the same (id, salt) pair always yields the same code, so no
// collision check is needed. Random draws codes uniformly and probes the
// URL store for uniqueness, retrying a bounded number of times.
package shortcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
)

// Alphabet is the bit-exact code alphabet. Encoding is big-endian
// positional with 0 encoded as the single character "0".
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const base = int64(len(Alphabet))

// Strategy produces a short code for a freshly minted URL id.
type Strategy interface {
	Generate(ctx context.Context, id int64) (string, error)
}

// CodeChecker probes the URL store for code collisions. Only the random
// strategy needs one.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// New builds the configured strategy.
func New(cfg config.ShortCodeConfig, checker CodeChecker) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyBase62:
		return NewBase62(cfg.Salt, cfg.Length), nil
	case config.StrategyRandom:
		if checker == nil {
			return nil, &core.ServiceError{
				Op:      "shortcode.New",
				Kind:    "shortcode",
				Message: "random strategy requires a code checker",
				Err:     core.ErrInvalidConfiguration,
			}
		}
		return NewRandom(cfg.Length, cfg.MaxRetries, checker), nil
	default:
		return nil, &core.ServiceError{
			Op:      "shortcode.New",
			Kind:    "shortcode",
			Message: fmt.Sprintf("unknown strategy: %q", cfg.Strategy),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}

// Capacity returns how many ids fit in codes of at most length chars.
func Capacity(length int) int64 {
	capacity := int64(1)
	for i := 0; i < length; i++ {
		capacity *= base
	}
	return capacity
}

// Base62 is the deterministic strategy: encode(id + salt) in the code
// alphabet. The salt obfuscates sequential ids without breaking
// injectivity.
type Base62 struct {
	salt      int64
	maxLength int
}

// NewBase62 creates a Base62 strategy.
func NewBase62(salt int64, maxLength int) *Base62 {
	return &Base62{salt: salt, maxLength: maxLength}
}

// Generate encodes id + salt. Ids whose encoding exceeds the configured
// length fail with ErrCapacityExceeded; the id space is exhausted and
// the operator must widen the length.
func (s *Base62) Generate(ctx context.Context, id int64) (string, error) {
	if id < 0 {
		return "", &core.ServiceError{
			Op:      "shortcode.Generate",
			Kind:    "shortcode",
			Message: fmt.Sprintf("negative url id: %d", id),
			Err:     core.ErrInvalidInput,
		}
	}

	code := encode(id + s.salt)
	if len(code) > s.maxLength {
		return "", &core.ServiceError{
			Op:      "shortcode.Generate",
			Kind:    "shortcode",
			Code:    code,
			Message: fmt.Sprintf("id %d encodes to %d chars, limit %d", id, len(code), s.maxLength),
			Err:     core.ErrCapacityExceeded,
		}
	}
	return code, nil
}

func encode(n int64) string {
	if n == 0 {
		return "0"
	}
	// 11 digits cover every non-negative int64
	var buf [11]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Random draws codes uniformly from the alphabet and retries on
// collision.
type Random struct {
	length     int
	maxRetries int
	checker    CodeChecker
}

// NewRandom creates a Random strategy backed by the given checker.
func NewRandom(length, maxRetries int, checker CodeChecker) *Random {
	return &Random{length: length, maxRetries: maxRetries, checker: checker}
}

// Generate draws up to maxRetries candidate codes, returning the first
// that does not collide. All candidates colliding fails with
// ErrExhausted. The id is unused; randomness replaces determinism here.
func (s *Random) Generate(ctx context.Context, id int64) (string, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		code, err := randomCode(s.length)
		if err != nil {
			return "", &core.ServiceError{
				Op:   "shortcode.Generate",
				Kind: "shortcode",
				Err:  fmt.Errorf("draw random code: %w", err),
			}
		}

		exists, err := s.checker.CodeExists(ctx, code)
		if err != nil {
			// The store wraps its own availability sentinel; keep the chain.
			return "", &core.ServiceError{
				Op:   "shortcode.Generate",
				Kind: "shortcode",
				Code: code,
				Err:  fmt.Errorf("uniqueness check: %w", err),
			}
		}
		if !exists {
			return code, nil
		}
	}

	return "", &core.ServiceError{
		Op:      "shortcode.Generate",
		Kind:    "shortcode",
		Message: fmt.Sprintf("no unique code after %d attempts", s.maxRetries),
		Err:     core.ErrExhausted,
	}
}

func randomCode(length int) (string, error) {
	max := big.NewInt(base)
	buf := make([]byte, length)
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = Alphabet[v.Int64()]
	}
	return string(buf), nil
}
