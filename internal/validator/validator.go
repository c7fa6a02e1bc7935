package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxUsernameLength    = 32
	maxChannelNameLength = 32
	maxServerNameLength  = 64
	maxRoleNameLength    = 64
	maxMessageLength     = 4000
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
var channelNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Username is also what the mention resolver matches on, so the accepted
// alphabet must stay a subset of the @token pattern.
func Username(username string) error {
	if username == "" {
		return fmt.Errorf("empty_username")
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("long_username")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("bad_format")
	}
	return nil
}

func ChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("empty_channel_name")
	}
	if len(name) > maxChannelNameLength {
		return fmt.Errorf("long_channel_name")
	}
	if !channelNamePattern.MatchString(name) {
		return fmt.Errorf("bad_format")
	}
	return nil
}

// ServerName allows any display text, only blank and oversized names are
// rejected.
func ServerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty_server_name")
	}
	if utf8.RuneCountInString(name) > maxServerNameLength {
		return fmt.Errorf("long_server_name")
	}
	return nil
}

func RoleName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty_role_name")
	}
	if utf8.RuneCountInString(name) > maxRoleNameLength {
		return fmt.Errorf("long_role_name")
	}
	return nil
}

func MessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("empty_message")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return fmt.Errorf("long_message")
	}
	return nil
}

// InviteParams checks createInvite arguments. Zero values mean unlimited
// uses and no expiry.
func InviteParams(maxUses int, expiresInMinutes int) error {
	if maxUses < 0 {
		return fmt.Errorf("negative_max_uses")
	}
	if expiresInMinutes < 0 {
		return fmt.Errorf("negative_expiry")
	}
	return nil
}
