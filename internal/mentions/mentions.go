package mentions

import (
	"context"
	"errors"
	"regexp"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/models"
)

// tokenPattern matches an @ followed by word characters. Usernames are
// a subset of \w, so a token either is a username or resolves to
// nothing.
var tokenPattern = regexp.MustCompile(`@(\w+)`)

// trailingPattern matches an in-progress token at the end of the input,
// for autocomplete. The empty capture after a bare "@" is intentional.
var trailingPattern = regexp.MustCompile(`@(\w*)$`)

// Directory resolves usernames within one server's member list.
type Directory interface {
	MemberByUsername(ctx context.Context, serverID int64, username string) (models.UserProfile, error)
}

// Span marks one resolved mention inside a message body, byte offsets.
type Span struct {
	Start  int                `json:"start"`
	End    int                `json:"end"`
	Member models.UserProfile `json:"member"`
}

type Resolver struct {
	directory Directory
}

func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve scans content for @username tokens and looks each one up in
// the server's member list. Tokens naming nobody are skipped; they stay
// plain text. Each member is returned once no matter how often they are
// mentioned.
func (r *Resolver) Resolve(ctx context.Context, serverID int64, content string) ([]models.UserProfile, error) {
	spans, err := r.Spans(ctx, serverID, content)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(spans))
	members := make([]models.UserProfile, 0, len(spans))
	for _, span := range spans {
		if _, ok := seen[span.Member.ID]; ok {
			continue
		}
		seen[span.Member.ID] = struct{}{}
		members = append(members, span.Member)
	}
	return members, nil
}

// Spans returns the resolved mention positions in content, in text
// order. A token is highlighted only when it resolved, so the render
// layer never marks up plain text that merely looks like a mention.
func (r *Resolver) Spans(ctx context.Context, serverID int64, content string) ([]Span, error) {
	matches := tokenPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	cache := make(map[string]*models.UserProfile)
	var spans []Span
	for _, match := range matches {
		username := content[match[2]:match[3]]
		member, ok := cache[username]
		if !ok {
			resolved, err := r.directory.MemberByUsername(ctx, serverID, username)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				cache[username] = nil
				continue
			case err != nil:
				return nil, err
			}
			member = &resolved
			cache[username] = member
		}
		if member == nil {
			continue
		}
		spans = append(spans, Span{Start: match[0], End: match[1], Member: *member})
	}
	return spans, nil
}

// CompletionPrefix reports the username fragment being typed at the end
// of input, for the autocomplete popup. ok is false when the input does
// not end in a mention token; a bare trailing "@" yields "" with ok
// true.
func CompletionPrefix(input string) (string, bool) {
	match := trailingPattern.FindStringSubmatch(input)
	if match == nil {
		return "", false
	}
	return match[1], true
}
