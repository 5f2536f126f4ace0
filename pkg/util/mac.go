package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// IsValidMAC reports whether s has the strict form hh:hh:hh:hh:hh:hh
// (six colon separated pairs of hex digits, either case).
func IsValidMAC(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i%3 == 2 {
			if c != ':' {
				return false
			}
			continue
		}
		if !isHex(c) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// NormalizeMAC lowercases a MAC so registry lookups are case insensitive.
func NormalizeMAC(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FormatMAC renders six bytes as a lowercase colon separated string.
func FormatMAC(b []byte) string {
	if len(b) < 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])
}

// IsZeroMAC reports whether all six bytes are zero.
func IsZeroMAC(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// RandomMACFrom draws six bytes from r and forces the result to be a
// unicast, locally administered address (bit 0 of byte 0 clear, bit 1 set),
// so it cannot collide with a vendor assigned address.
func RandomMACFrom(r io.Reader) (string, error) {
	b := make([]byte, 6)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	b[0] &^= 0x01
	b[0] |= 0x02
	return FormatMAC(b), nil
}

// RandomMAC returns a random unicast, locally administered MAC.
func RandomMAC() string {
	mac, err := RandomMACFrom(rand.Reader)
	if err != nil {
		// only reachable when the OS entropy source is broken
		return "02:00:00:00:00:01"
	}
	return mac
}
