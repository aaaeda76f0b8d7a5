package masking

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

const (
	// DefaultEmailPattern masks the local part after its first character and
	// the domain between its first character and the last label.
	DefaultEmailPattern = `(?<=.)[^@](?=[^@]*?@)|(?:(?<=@.)|(?!^)\G(?=[^@]*$)).(?=.*\.)`
	// DefaultMobilePattern masks every character except the last four.
	DefaultMobilePattern = `.(?=.{4})`
	// DefaultMaskChar is an exported constant or variable used by masking APIs.
	DefaultMaskChar = "*"

	defaultMatchTimeout = 100 * time.Millisecond
)

// Config defines a public type used by goRecovery APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	EmailPattern  string
	MobilePattern string
	MaskChar      string
	MatchTimeout  time.Duration
}

// Masker defines a public type used by goRecovery APIs.
//
// Masker instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Masker struct {
	email       *regexp2.Regexp
	mobile      *regexp2.Regexp
	maskChar    string
	replacement string
}

// Compile reports whether pattern is a valid masking expression.
func Compile(pattern string) error {
	_, err := compile(pattern, 0)
	return err
}

func compile(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, errors.New("masking pattern is empty")
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultMatchTimeout
	}
	re.MatchTimeout = timeout
	return re, nil
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(cfg Config) (*Masker, error) {
	if cfg.EmailPattern == "" {
		cfg.EmailPattern = DefaultEmailPattern
	}
	if cfg.MobilePattern == "" {
		cfg.MobilePattern = DefaultMobilePattern
	}
	if cfg.MaskChar == "" {
		cfg.MaskChar = DefaultMaskChar
	}
	if utf8.RuneCountInString(cfg.MaskChar) != 1 {
		return nil, errors.New("mask character must be a single character")
	}

	email, err := compile(cfg.EmailPattern, cfg.MatchTimeout)
	if err != nil {
		return nil, err
	}
	mobile, err := compile(cfg.MobilePattern, cfg.MatchTimeout)
	if err != nil {
		return nil, err
	}

	return &Masker{
		email:    email,
		mobile:   mobile,
		maskChar: cfg.MaskChar,
		// "$" starts a substitution in regexp2 replacement strings.
		replacement: strings.ReplaceAll(cfg.MaskChar, "$", "$$"),
	}, nil
}

// Email describes the email operation and its observable behavior.
//
// Email does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Masker) Email(value string) string {
	return m.apply(m.email, value)
}

// Mobile describes the mobile operation and its observable behavior.
//
// Mobile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Masker) Mobile(value string) string {
	return m.apply(m.mobile, value)
}

func (m *Masker) apply(re *regexp2.Regexp, value string) string {
	if value == "" {
		return ""
	}
	out, err := re.Replace(value, m.replacement, -1, -1)
	if err != nil || utf8.RuneCountInString(out) > utf8.RuneCountInString(value) {
		return m.full(value)
	}
	return out
}

func (m *Masker) full(value string) string {
	return strings.Repeat(m.maskChar, utf8.RuneCountInString(value))
}
