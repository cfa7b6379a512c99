package session

import (
	"errors"

	"github.com/matheus3301/gravvy/internal/config"
)

// ErrNoAccount is returned when no account was named and none is configured.
var ErrNoAccount = errors.New("no account: pass --account or set default_account in config.toml")

// Resolve determines the active account using precedence:
// 1. flagOverride (--account flag)
// 2. default_account of cfg
func Resolve(flagOverride string, cfg *config.Config) (string, error) {
	phone := flagOverride
	if phone == "" && cfg != nil {
		phone = cfg.DefaultAccount
	}
	if phone == "" {
		return "", ErrNoAccount
	}
	if err := ValidatePhone(phone); err != nil {
		return "", err
	}
	return phone, nil
}
