package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName is returned when a name is empty after normalization.
var ErrInvalidName = errors.New("invalid name")

// LoginDirectory is the uniqueness lookup the allocator consults.
type LoginDirectory interface {
	LoginExists(ctx context.Context, login string) (bool, error)
}

// LoginAllocator derives a unique human-readable login from a person's
// name: normalized first initial plus surname, with a numeric suffix when
// that base is already taken.
type LoginAllocator struct {
	dir LoginDirectory
}

func NewLoginAllocator(dir LoginDirectory) *LoginAllocator {
	return &LoginAllocator{dir: dir}
}

// Allocate returns the first free candidate: "jkowalski", then
// "jkowalski2", "jkowalski3", ... The suffix sequence is deterministic, so
// re-running against the same directory state yields the same login.
func (a *LoginAllocator) Allocate(ctx context.Context, firstName, lastName string) (string, error) {
	first := normalizeName(firstName)
	last := normalizeName(lastName)
	if first == "" || last == "" {
		return "", ErrInvalidName
	}

	base := first[:1] + last
	candidate := base
	for n := 2; ; n++ {
		taken, err := a.dir.LoginExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(n)
	}
}

// stroked letters have no canonical decomposition, so the combining-mark
// strip below cannot reach them.
var strokedReplacer = strings.NewReplacer(
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ø", "o", "Ø", "O",
)

var markStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeName(name string) string {
	name = strokedReplacer.Replace(strings.TrimSpace(name))
	if stripped, _, err := transform.String(markStripper, name); err == nil {
		name = stripped
	}
	name = strings.ToLower(name)

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
