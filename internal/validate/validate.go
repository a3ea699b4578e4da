// Package validate checks credential input before any backend is contacted.
// Every function returns "" when the input is acceptable, otherwise the first
// failing rule's user-facing message.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MsgEmailEmpty   = "Email can't be empty"
	MsgEmailInvalid = "Please provide a valid email address"

	MsgPasswordLength  = "The password must be at least 8 characters long and no more than 30 characters long."
	MsgPasswordInvalid = "Invalid password. Please enter a valid password"

	MsgUsernameEmpty      = "Username can't be empty. Please provide a username."
	MsgUsernameLength     = "The username must be at least 3 characters long and no more than 30 characters long."
	MsgUsernameCharset    = "The username must only contain alphanumeric characters and underscores."
	MsgUsernameUnderscore = "The username must not start or end with an underscore."
)

const (
	passwordMinLen   = 8
	passwordMaxLen   = 30
	passwordShapeMax = 32
	usernameMinLen   = 3
	usernameMaxLen   = 30
)

var (
	// Same shape as the platform email matcher mobile clients use.
	emailPattern = regexp.MustCompile(
		`^[a-zA-Z0-9+._%\-]{1,256}@[a-zA-Z0-9][a-zA-Z0-9\-]{0,64}(\.[a-zA-Z0-9][a-zA-Z0-9\-]{0,25})+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
)

// Email checks presence and shape.
func Email(email string) string {
	switch {
	case isBlank(email):
		return MsgEmailEmpty
	case !emailPattern.MatchString(email):
		return MsgEmailInvalid
	default:
		return ""
	}
}

// Password applies the length rule to non-blank input, then the shape rule
// (8 to 32 characters on one line, no leading hyphen).
func Password(password string) string {
	n := utf8.RuneCountInString(password)
	switch {
	case !isBlank(password) && (n < passwordMinLen || n > passwordMaxLen):
		return MsgPasswordLength
	case !passwordShapeOK(password, n):
		return MsgPasswordInvalid
	default:
		return ""
	}
}

// Username checks presence, length, charset, then underscore placement.
func Username(name string) string {
	n := utf8.RuneCountInString(name)
	switch {
	case isBlank(name):
		return MsgUsernameEmpty
	case n < usernameMinLen || n > usernameMaxLen:
		return MsgUsernameLength
	case !usernamePattern.MatchString(name):
		return MsgUsernameCharset
	case strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_"):
		return MsgUsernameUnderscore
	default:
		return ""
	}
}

// SignUpDetails validates email, then password, then username.
func SignUpDetails(email, username, password string) string {
	if msg := Email(email); msg != "" {
		return msg
	}
	if msg := Password(password); msg != "" {
		return msg
	}
	return Username(username)
}

// SignInDetails validates email, then password.
func SignInDetails(email, password string) string {
	if msg := Email(email); msg != "" {
		return msg
	}
	return Password(password)
}

func passwordShapeOK(password string, n int) bool {
	if n < passwordMinLen || n > passwordShapeMax {
		return false
	}
	if strings.HasPrefix(password, "-") {
		return false
	}
	return !strings.ContainsAny(password, "\n\r\u0085\u2028\u2029")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
