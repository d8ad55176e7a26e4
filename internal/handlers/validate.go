package handlers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// maxFileContent bounds config and env file uploads.
const maxFileContent = 100000

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateUsername(username string) error {
	if username == "" {
		return errors.New("Username is required")
	}
	if len(username) < 3 || len(username) > 50 {
		return errors.New("Username must be between 3 and 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("Username contains invalid characters")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return errors.New("Password is required")
	}
	if len(password) > 100 {
		return errors.New("Password must be between 1 and 100 characters")
	}
	return nil
}

func validateFileContent(content *string) error {
	if content == nil {
		return errors.New("Content is required")
	}
	if len(*content) > maxFileContent {
		return fmt.Errorf("Content too large. Maximum size is %d bytes", maxFileContent)
	}
	if strings.ContainsRune(*content, 0) {
		return errors.New("Content contains invalid null bytes")
	}
	return nil
}
