package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// maxIdentifierAttempts bounds retries when a generated identifier collides.
const maxIdentifierAttempts = 5

const (
	referenceSuffixDigits = 6
	accountNumberDigits   = 10
)

// IdentifierGenerator produces reference numbers and account numbers.
type IdentifierGenerator struct {
	prefix string
	now    func() time.Time
	random func(upper int64) (int64, error)
}

func NewIdentifierGenerator(prefix string) *IdentifierGenerator {
	return &IdentifierGenerator{prefix: prefix, now: time.Now, random: cryptoRandom}
}

func cryptoRandom(upper int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(upper))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// Reference returns prefix + unix millis + a zero-padded random suffix,
// e.g. TXN1767225600000042317.
func (g *IdentifierGenerator) Reference() (string, error) {
	n, err := g.random(pow10(referenceSuffixDigits))
	if err != nil {
		return "", fmt.Errorf("reference suffix: %w", err)
	}
	return fmt.Sprintf("%s%d%0*d", g.prefix, g.now().UnixMilli(), referenceSuffixDigits, n), nil
}

// AccountNumber returns a 10-digit number that never starts with zero.
func (g *IdentifierGenerator) AccountNumber() (string, error) {
	low := pow10(accountNumberDigits - 1)
	n, err := g.random(pow10(accountNumberDigits) - low)
	if err != nil {
		return "", fmt.Errorf("account number: %w", err)
	}
	return strconv.FormatInt(low+n, 10), nil
}

// retryUnique calls attempt with fresh identifiers until it reports that the
// identifier was free, giving up after maxIdentifierAttempts collisions.
func retryUnique(ctx context.Context, next func() (string, error), attempt func(id string) (collided bool, err error)) error {
	for i := 0; i < maxIdentifierAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := next()
		if err != nil {
			return err
		}
		collided, err := attempt(id)
		if err != nil {
			return err
		}
		if !collided {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrIdentifierExhausted, maxIdentifierAttempts)
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
