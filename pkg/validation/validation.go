package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxGroupNameLength = 64
	MaxPasswordLength  = 128
	MaxPluginPathBytes = 4096
)

// UsernameRegex restricts API client names to a URL-safe alphabet.
var UsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateGroupName checks a channel group display name. Names are compared
// byte for byte elsewhere, so surrounding whitespace is rejected rather than trimmed.
func ValidateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("group name is required")
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("group name must not start or end with whitespace")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("group name contains invalid characters")
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("group name contains control characters")
	}
	return ValidateStringLength(name, 1, MaxGroupNameLength, "group name")
}

// ValidateRoomPassword accepts the empty password (public room).
func ValidateRoomPassword(password string) error {
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password is too long (max %d characters)", MaxPasswordLength)
	}
	if strings.ContainsRune(password, 0) {
		return fmt.Errorf("password contains invalid characters")
	}
	return nil
}

// ValidateEndpoint checks a private server address. host must not carry
// a port of its own.
func ValidateEndpoint(host string, port int) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("server host is required")
	}
	if strings.ContainsAny(host, " /") {
		return fmt.Errorf("invalid server host %q", host)
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return fmt.Errorf("server host must not include a port")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("server port must be within 1-65535, got %d", port)
	}
	return nil
}

// ValidatePluginPath rejects empty, oversized and NUL-containing paths.
func ValidatePluginPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("plugin path is required")
	}
	if len(path) > MaxPluginPathBytes {
		return fmt.Errorf("plugin path is too long")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("plugin path contains invalid characters")
	}
	return nil
}

// ValidateStreamURL validates a room preview stream location.
func ValidateStreamURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("stream URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid stream URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("stream URL must have a host")
	}
	return nil
}

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !UsernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateStringLength validates string length in runes.
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
