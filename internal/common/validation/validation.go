package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MaxTitleLength    = 200
	MaxTemplateLength = 500
	MaxUsernameLength = 64
	MaxMessageLength  = 500

	MinTitleLength = 1
)

// Command names: letters, digits, underscores; 1-32 characters, no prefix.
var commandNameRegex = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

var validate = validator.New()

// Struct runs validator/v10 tag validation over a request payload.
func Struct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateTitle checks an event or giveaway title.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if len(title) < MinTitleLength {
		return fmt.Errorf("title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("title cannot exceed %d characters", MaxTitleLength)
	}
	return nil
}

// ValidateCommandName checks a chat command name (without prefix).
func ValidateCommandName(name string) error {
	if !commandNameRegex.MatchString(name) {
		return fmt.Errorf("command name must be 1-32 lowercase letters, digits or underscores")
	}
	return nil
}

// ValidateResponseTemplate checks a command response template.
func ValidateResponseTemplate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return fmt.Errorf("response template cannot be empty")
	}
	if len(tpl) > MaxTemplateLength {
		return fmt.Errorf("response template cannot exceed %d characters", MaxTemplateLength)
	}
	return nil
}

// ValidateChatMessage checks an outbound chat message body.
func ValidateChatMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if len(text) > MaxMessageLength {
		return fmt.Errorf("message cannot exceed %d characters", MaxMessageLength)
	}
	return nil
}
