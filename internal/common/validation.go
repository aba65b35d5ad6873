package common

import (
	"errors"
	"regexp"
	"strings"
)

var memberIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// ValidateMemberID checks a participant identifier. IDs end up inside
// conversation keys and dotted store field paths, so separators are banned.
func ValidateMemberID(id string) error {
	id = strings.TrimSpace(id)
	if len(id) == 0 || len(id) > 128 {
		return errors.New("member id must be between 1 and 128 characters")
	}

	if !memberIDRegex.MatchString(id) {
		return errors.New("member id can only contain letters, numbers, dashes and underscores")
	}

	return nil
}

func ValidateGroupName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 100 {
		return errors.New("group name must be between 1 and 100 characters")
	}

	return nil
}
