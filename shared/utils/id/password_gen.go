package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	specialChars = "!@#$%&*+=?"
	digits       = "0123456789"
	lowercase    = "abcdefghijklmnopqrstuvwxyz"
	uppercase    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// PasswordPolicy describes the shape of a generated password.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// UnusablePasswordPolicy produces secrets nobody is ever shown. Accounts
// provisioned by an identity provider get one so the password login path
// cannot be used against them.
var UnusablePasswordPolicy = PasswordPolicy{
	MinLength:      48,
	RequireUpper:   true,
	RequireLower:   true,
	RequireDigit:   true,
	RequireSpecial: true,
}

func GenerateUnusablePassword() (string, error) {
	return GeneratePasswordWithPolicy(UnusablePasswordPolicy)
}

func GeneratePasswordWithPolicy(policy PasswordPolicy) (string, error) {
	var charSet string
	var password strings.Builder

	required := []struct {
		enabled bool
		set     string
	}{
		{policy.RequireUpper, uppercase},
		{policy.RequireLower, lowercase},
		{policy.RequireDigit, digits},
		{policy.RequireSpecial, specialChars},
	}
	for _, r := range required {
		if !r.enabled {
			continue
		}
		charSet += r.set
		c, err := randomChar(r.set)
		if err != nil {
			return "", err
		}
		password.WriteByte(c)
	}

	if charSet == "" {
		charSet = lowercase + uppercase + digits
	}

	for password.Len() < policy.MinLength {
		c, err := randomChar(charSet)
		if err != nil {
			return "", err
		}
		password.WriteByte(c)
	}

	// Shuffle so the required classes are not always at the front.
	passBytes := []byte(password.String())
	for i := len(passBytes) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle password: %w", err)
		}
		j := int(jBig.Int64())
		passBytes[i], passBytes[j] = passBytes[j], passBytes[i]
	}

	return string(passBytes), nil
}

func randomChar(set string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generate random char: %w", err)
	}
	return set[idx.Int64()], nil
}
