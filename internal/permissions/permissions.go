package permissions

import (
	"context"
	"errors"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/models"
)

type Bitmask int64

const (
	ManageServer Bitmask = 1 << iota
	ManageRoles
	ManageChannels
	KickMembers
	BanMembers
	SendMessages
	ReadMessages
	ManageMessages
	EmbedLinks
	AttachFiles
	MentionEveryone
	UseVoice
	Speak
	MuteMembers
	DeafenMembers
	MoveMembers
)

// All covers every defined permission bit. The server owner resolves to this.
const All = Bitmask(1<<16 - 1)

// DefaultEveryone is what a fresh @everyone role grants.
const DefaultEveryone = SendMessages | ReadMessages | EmbedLinks | AttachFiles | UseVoice | Speak

func (b Bitmask) Has(perm Bitmask) bool {
	return b&perm == perm
}

// MemberSource is the slice of the backend the resolver reads from.
type MemberSource interface {
	Server(ctx context.Context, serverID int64) (models.Server, error)
	Membership(ctx context.Context, serverID int64, userID int64) (models.Membership, error)
	Role(ctx context.Context, roleID int64) (models.Role, error)
	EveryoneRole(ctx context.Context, serverID int64) (models.Role, error)
}

// Resolver computes effective permission bitmasks. It is stateless and
// safe to consult on every write attempt.
type Resolver struct {
	src MemberSource
}

func NewResolver(src MemberSource) *Resolver {
	return &Resolver{src: src}
}

// Effective returns the OR of the member's assigned role and the server's
// @everyone role. The server owner bypasses role lookups entirely. A user
// with no membership resolves to zero bits.
func (r *Resolver) Effective(ctx context.Context, userID int64, serverID int64) (Bitmask, error) {
	server, err := r.src.Server(ctx, serverID)
	if err != nil {
		return 0, err
	}

	if server.OwnerID == userID {
		return All, nil
	}

	membership, err := r.src.Membership(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	everyone, err := r.src.EveryoneRole(ctx, serverID)
	if err != nil {
		return 0, err
	}

	mask := Bitmask(everyone.Permissions)

	if membership.RoleID != 0 {
		role, err := r.src.Role(ctx, membership.RoleID)
		if err != nil {
			return 0, err
		}
		mask |= Bitmask(role.Permissions)
	}

	return mask, nil
}

// Has reports whether the user holds the requested permission in the server.
// Any (user, server) pair without a membership is denied regardless of roles.
func (r *Resolver) Has(ctx context.Context, userID int64, serverID int64, perm Bitmask) (bool, error) {
	mask, err := r.Effective(ctx, userID, serverID)
	if err != nil {
		return false, err
	}
	return mask.Has(perm), nil
}

// Require turns a missing permission into apperr.ErrPermissionDenied.
func (r *Resolver) Require(ctx context.Context, userID int64, serverID int64, perm Bitmask) error {
	ok, err := r.Has(ctx, userID, serverID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrPermissionDenied
	}
	return nil
}

// CheckAll answers several permission questions for the same actor with one
// bitmask resolution. The result is identical to independent Has calls.
func (r *Resolver) CheckAll(ctx context.Context, userID int64, serverID int64, perms ...Bitmask) (map[Bitmask]bool, error) {
	mask, err := r.Effective(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}

	results := make(map[Bitmask]bool, len(perms))
	for _, perm := range perms {
		results[perm] = mask.Has(perm)
	}
	return results, nil
}
