package validator_test

import (
	"fmt"
	"strings"
	"testing"

	"chatapp-client/internal/validator"
)

func TestUsername(t *testing.T) {
	tests := []struct {
		name          string
		username      string
		expectedError error
	}{
		{
			name:          "Valid: Lowercase with digits",
			username:      "user123",
			expectedError: nil,
		},
		{
			name:          "Valid: Underscores",
			username:      "some_user",
			expectedError: nil,
		},
		{
			name:          "Error: Empty",
			username:      "",
			expectedError: fmt.Errorf("empty_username"),
		},
		{
			name:          "Error: Too long (33 characters)",
			username:      strings.Repeat("a", 33),
			expectedError: fmt.Errorf("long_username"),
		},
		{
			name:          "Error: Uppercase letters",
			username:      "User",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Spaces",
			username:      "some user",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Mention trigger characters",
			username:      "@user",
			expectedError: fmt.Errorf("bad_format"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Username(tc.username)
			checkExpected(t, "Username", tc.username, err, tc.expectedError)
		})
	}
}

func TestChannelName(t *testing.T) {
	tests := []struct {
		name          string
		channelName   string
		expectedError error
	}{
		{
			name:          "Valid: Hyphenated",
			channelName:   "general-chat",
			expectedError: nil,
		},
		{
			name:          "Error: Empty",
			channelName:   "",
			expectedError: fmt.Errorf("empty_channel_name"),
		},
		{
			name:          "Error: Too long (33 characters)",
			channelName:   strings.Repeat("x", 33),
			expectedError: fmt.Errorf("long_channel_name"),
		},
		{
			name:          "Error: Underscores not allowed",
			channelName:   "general_chat",
			expectedError: fmt.Errorf("bad_format"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.ChannelName(tc.channelName)
			checkExpected(t, "ChannelName", tc.channelName, err, tc.expectedError)
		})
	}
}

func TestServerName(t *testing.T) {
	tests := []struct {
		name          string
		serverName    string
		expectedError error
	}{
		{
			name:          "Valid: Display text with spaces",
			serverName:    "My Cool Server",
			expectedError: nil,
		},
		{
			name:          "Valid: Maximum length",
			serverName:    strings.Repeat("a", 64),
			expectedError: nil,
		},
		{
			name:          "Error: Empty",
			serverName:    "",
			expectedError: fmt.Errorf("empty_server_name"),
		},
		{
			name:          "Error: Whitespace only",
			serverName:    "   ",
			expectedError: fmt.Errorf("empty_server_name"),
		},
		{
			name:          "Error: Too long (65 characters)",
			serverName:    strings.Repeat("a", 65),
			expectedError: fmt.Errorf("long_server_name"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.ServerName(tc.serverName)
			checkExpected(t, "ServerName", tc.serverName, err, tc.expectedError)
		})
	}
}

func TestRoleName(t *testing.T) {
	tests := []struct {
		name          string
		roleName      string
		expectedError error
	}{
		{
			name:          "Valid: Display text",
			roleName:      "Moderator",
			expectedError: nil,
		},
		{
			name:          "Error: Empty",
			roleName:      "",
			expectedError: fmt.Errorf("empty_role_name"),
		},
		{
			name:          "Error: Too long (65 characters)",
			roleName:      strings.Repeat("r", 65),
			expectedError: fmt.Errorf("long_role_name"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.RoleName(tc.roleName)
			checkExpected(t, "RoleName", tc.roleName, err, tc.expectedError)
		})
	}
}

func TestMessageContent(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedError error
	}{
		{
			name:          "Valid: Plain text",
			content:       "hello there",
			expectedError: nil,
		},
		{
			name:          "Valid: Maximum length",
			content:       strings.Repeat("a", 4000),
			expectedError: nil,
		},
		{
			name:          "Error: Empty",
			content:       "",
			expectedError: fmt.Errorf("empty_message"),
		},
		{
			name:          "Error: Whitespace only",
			content:       "   \n\t",
			expectedError: fmt.Errorf("empty_message"),
		},
		{
			name:          "Error: Too long",
			content:       strings.Repeat("a", 4001),
			expectedError: fmt.Errorf("long_message"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.MessageContent(tc.content)
			checkExpected(t, "MessageContent", tc.content, err, tc.expectedError)
		})
	}
}

func TestInviteParams(t *testing.T) {
	tests := []struct {
		name          string
		maxUses       int
		expiresIn     int
		expectedError error
	}{
		{
			name:          "Valid: Unlimited",
			maxUses:       0,
			expiresIn:     0,
			expectedError: nil,
		},
		{
			name:          "Valid: Bounded",
			maxUses:       5,
			expiresIn:     60,
			expectedError: nil,
		},
		{
			name:          "Error: Negative max uses",
			maxUses:       -1,
			expiresIn:     0,
			expectedError: fmt.Errorf("negative_max_uses"),
		},
		{
			name:          "Error: Negative expiry",
			maxUses:       0,
			expiresIn:     -5,
			expectedError: fmt.Errorf("negative_expiry"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.InviteParams(tc.maxUses, tc.expiresIn)
			checkExpected(t, "InviteParams", fmt.Sprintf("%d/%d", tc.maxUses, tc.expiresIn), err, tc.expectedError)
		})
	}
}

func checkExpected(t *testing.T, fn string, input string, err error, expected error) {
	t.Helper()

	if expected == nil {
		if err != nil {
			t.Errorf("%s(%q) failed unexpectedly: got error %v, want nil", fn, input, err)
		}
		return
	}

	if err == nil {
		t.Errorf("%s(%q) passed unexpectedly: got nil, want error %v", fn, input, expected)
		return
	}

	if err.Error() != expected.Error() {
		t.Errorf("%s(%q) got error %q, want error %q", fn, input, err.Error(), expected.Error())
	}
}
