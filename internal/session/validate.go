package session

import (
	"fmt"
	"regexp"

	"github.com/ttacon/libphonenumber"
)

var e164Regexp = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ValidatePhone checks that phone is an E.164 number such as +15551234567.
func ValidatePhone(phone string) error {
	if !e164Regexp.MatchString(phone) {
		return fmt.Errorf("invalid phone number %q: must be E.164, e.g. +15551234567", phone)
	}
	return nil
}

// NormalizePhone converts a number as typed in an address book into E.164.
// Numbers without a country code are read as belonging to region, an ISO
// 3166 code such as "US".
func NormalizePhone(raw, region string) (string, error) {
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", raw, err)
	}
	if !libphonenumber.IsPossibleNumber(num) {
		return "", fmt.Errorf("parse phone %q: not a possible number", raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
