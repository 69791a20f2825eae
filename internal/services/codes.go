package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
	"unicode"
)

const (
	skuAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits         = "0123456789"
	storeEANPrefix = "200"
	codeAttempts   = 10
)

// slugify lowercases s and collapses every run of non-alphanumerics into a
// single dash.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// skuPrefix is "{CAT3}-{SLUG3}-{YYMMDD}".
func skuPrefix(category, name string, day time.Time) string {
	return strings.ToUpper(head(category, 3)) + "-" +
		strings.ToUpper(head(slugify(name), 3)) + "-" +
		day.Format("060102")
}

func randomString(r io.Reader, alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		k, err := rand.Int(r, max)
		if err != nil {
			return "", fmt.Errorf("random code: %w", err)
		}
		out[i] = alphabet[k.Int64()]
	}
	return string(out), nil
}

// eanCheckDigit computes the EAN-13 check digit of a 12-digit body.
func eanCheckDigit(body string) byte {
	sum := 0
	for i, c := range body {
		d := int(c - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

// validEAN13 reports whether code is 13 digits with a correct check digit.
func validEAN13(code string) bool {
	if len(code) != 13 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return eanCheckDigit(code[:12]) == code[12]
}

// uniqueCode draws candidates from gen until taken reports a free one.
func uniqueCode(ctx context.Context, kind string, gen func() (string, error), taken func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := gen()
		if err != nil {
			return "", err
		}
		used, err := taken(ctx, code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unique %s after %d attempts", kind, codeAttempts)
}

func (c *core) newSKU(ctx context.Context, category, name string, taken func(context.Context, string) (bool, error)) (string, error) {
	prefix := skuPrefix(category, name, c.now())
	return uniqueCode(ctx, "sku", func() (string, error) {
		suffix, err := randomString(c.rand, skuAlphabet, 3)
		return prefix + "-" + suffix, err
	}, taken)
}

func (c *core) newBarcode(ctx context.Context, taken func(context.Context, string) (bool, error)) (string, error) {
	return uniqueCode(ctx, "barcode", func() (string, error) {
		body, err := randomString(c.rand, digits, 9)
		if err != nil {
			return "", err
		}
		body = storeEANPrefix + body
		return body + string(eanCheckDigit(body)), nil
	}, taken)
}

// newPassword draws a 12-character password holding at least one
// lowercase letter, uppercase letter, digit and symbol.
func (c *core) newPassword() (string, error) {
	const (
		lower   = "abcdefghijklmnopqrstuvwxyz"
		upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		symbols = "!@#$%^&*"
	)
	var b []byte
	for _, set := range []string{lower, upper, digits, symbols} {
		s, err := randomString(c.rand, set, 1)
		if err != nil {
			return "", err
		}
		b = append(b, s...)
	}
	rest, err := randomString(c.rand, lower+upper+digits+symbols, 8)
	if err != nil {
		return "", err
	}
	b = append(b, rest...)
	for i := len(b) - 1; i > 0; i-- {
		j, err := rand.Int(c.rand, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("random code: %w", err)
		}
		b[i], b[j.Int64()] = b[j.Int64()], b[i]
	}
	return string(b), nil
}
