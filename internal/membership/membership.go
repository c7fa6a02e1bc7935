package membership

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/models"
	"chatapp-client/internal/permissions"
	"chatapp-client/internal/store"
	"chatapp-client/internal/validator"
)

// Workflow drives server membership for the local user: creating
// servers, issuing and redeeming invites, and moderation. Every
// privileged operation checks the caller's permission before touching
// the store, the store's own transactional checks stay the authority.
type Workflow struct {
	sugar  *zap.SugaredLogger
	store  *store.Store
	selfID int64
}

func NewWorkflow(s *store.Store, selfID int64, sugar *zap.SugaredLogger) *Workflow {
	return &Workflow{sugar: sugar, store: s, selfID: selfID}
}

// CreateServer makes the local user owner of a fresh server with its
// @everyone role and #general channel.
func (w *Workflow) CreateServer(ctx context.Context, name string) (models.Server, error) {
	server, err := w.store.CreateServer(ctx, w.selfID, name)
	if err != nil {
		return models.Server{}, err
	}
	w.sugar.Debugf("[%d] created server [%d]", w.selfID, server.ID)
	return server, nil
}

// CreateInvite issues an invite code. maxUses 0 means unlimited,
// expiresInMinutes 0 means the code never expires.
func (w *Workflow) CreateInvite(ctx context.Context, serverID int64, maxUses int, expiresInMinutes int) (models.Invite, error) {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.ManageServer); err != nil {
		return models.Invite{}, err
	}
	if err := validator.InviteParams(maxUses, expiresInMinutes); err != nil {
		return models.Invite{}, err
	}

	var expiresAt *time.Time
	if expiresInMinutes > 0 {
		at := time.Now().UTC().Add(time.Duration(expiresInMinutes) * time.Minute)
		expiresAt = &at
	}
	return w.store.CreateInvite(ctx, serverID, w.selfID, maxUses, expiresAt)
}

// AcceptInvite joins the server behind the code. Redeeming a code for a
// server the user already belongs to succeeds without consuming a use.
func (w *Workflow) AcceptInvite(ctx context.Context, code string) (models.Server, error) {
	serverID, err := w.store.AcceptInvite(ctx, code, w.selfID)
	if err != nil {
		return models.Server{}, err
	}
	w.sugar.Debugf("[%d] joined server [%d]", w.selfID, serverID)
	return w.store.Server(ctx, serverID)
}

// JoinByName joins a server looked up by its exact name, no invite code
// involved. Joining a server the user already belongs to succeeds as a
// no-op.
func (w *Workflow) JoinByName(ctx context.Context, name string) (models.Server, error) {
	serverID, err := w.store.JoinServerByName(ctx, name, w.selfID)
	if err != nil {
		return models.Server{}, err
	}
	w.sugar.Debugf("[%d] joined server [%d] by name", w.selfID, serverID)
	return w.store.Server(ctx, serverID)
}

// LeaveServer removes the local user's own membership.
func (w *Workflow) LeaveServer(ctx context.Context, serverID int64) error {
	return w.store.KickMember(ctx, serverID, w.selfID)
}

// Kick removes another member.
func (w *Workflow) Kick(ctx context.Context, serverID int64, userID int64) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.KickMembers); err != nil {
		return err
	}
	return w.store.KickMember(ctx, serverID, userID)
}

// Ban removes a member and blocks them from redeeming invites to the
// server until unbanned.
func (w *Workflow) Ban(ctx context.Context, serverID int64, userID int64, reason string) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.BanMembers); err != nil {
		return err
	}
	return w.store.BanMember(ctx, serverID, userID, reason)
}

func (w *Workflow) Unban(ctx context.Context, serverID int64, userID int64) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.BanMembers); err != nil {
		return err
	}
	return w.store.UnbanMember(ctx, serverID, userID)
}

// Invites lists a server's open invites, for the settings panel.
func (w *Workflow) Invites(ctx context.Context, serverID int64) ([]models.Invite, error) {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.ManageServer); err != nil {
		return nil, err
	}
	return w.store.InvitesOf(ctx, serverID)
}

// RevokeInvite deletes an invite code.
func (w *Workflow) RevokeInvite(ctx context.Context, serverID int64, inviteID int64) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.ManageServer); err != nil {
		return err
	}
	return w.store.DeleteInvite(ctx, inviteID)
}

// Roles lists a server's roles, @everyone included.
func (w *Workflow) Roles(ctx context.Context, serverID int64) ([]models.Role, error) {
	return w.store.RolesOf(ctx, serverID)
}

func (w *Workflow) CreateRole(ctx context.Context, serverID int64, name string, color string, position int, perms int64) (models.Role, error) {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.ManageRoles); err != nil {
		return models.Role{}, err
	}
	return w.store.CreateRole(ctx, serverID, name, color, position, perms)
}

func (w *Workflow) UpdateRole(ctx context.Context, serverID int64, roleID int64, name string, color string, position int, perms int64) error {
	if err := w.requireRole(ctx, serverID, roleID, permissions.ManageRoles); err != nil {
		return err
	}
	return w.store.UpdateRole(ctx, roleID, name, color, position, perms)
}

// UpdateEveryonePermissions changes the bitmask of the server's default
// role.
func (w *Workflow) UpdateEveryonePermissions(ctx context.Context, serverID int64, perms int64) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.ManageRoles); err != nil {
		return err
	}
	return w.store.UpdateEveryonePermissions(ctx, serverID, perms)
}

func (w *Workflow) DeleteRole(ctx context.Context, serverID int64, roleID int64) error {
	if err := w.requireRole(ctx, serverID, roleID, permissions.ManageRoles); err != nil {
		return err
	}
	return w.store.DeleteRole(ctx, roleID)
}

// AssignRole gives a member a role, or clears it when roleID is 0.
func (w *Workflow) AssignRole(ctx context.Context, serverID int64, userID int64, roleID int64) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, permissions.ManageRoles); err != nil {
		return err
	}
	return w.store.AssignRole(ctx, serverID, userID, roleID)
}

func (w *Workflow) UpdateChannel(ctx context.Context, serverID int64, channelID int64, name string, position int) error {
	if err := w.requireChannel(ctx, serverID, channelID, permissions.ManageChannels); err != nil {
		return err
	}
	return w.store.UpdateChannel(ctx, channelID, name, position)
}

func (w *Workflow) DeleteChannel(ctx context.Context, serverID int64, channelID int64) error {
	if err := w.requireChannel(ctx, serverID, channelID, permissions.ManageChannels); err != nil {
		return err
	}
	return w.store.DeleteChannel(ctx, channelID)
}

// requireRole checks the permission and that the role belongs to the
// server the caller is acting on.
func (w *Workflow) requireRole(ctx context.Context, serverID int64, roleID int64, perm permissions.Bitmask) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, perm); err != nil {
		return err
	}
	role, err := w.store.Role(ctx, roleID)
	if err != nil {
		return err
	}
	if role.ServerID != serverID {
		return apperr.ErrNotFound
	}
	return nil
}

func (w *Workflow) requireChannel(ctx context.Context, serverID int64, channelID int64, perm permissions.Bitmask) error {
	if err := w.store.RequirePermission(ctx, w.selfID, serverID, perm); err != nil {
		return err
	}
	channel, err := w.store.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.ServerID != serverID {
		return apperr.ErrNotFound
	}
	return nil
}

// Servers lists the servers the local user belongs to.
func (w *Workflow) Servers(ctx context.Context) ([]models.Server, error) {
	return w.store.ServersOf(ctx, w.selfID)
}

// Members lists a server's member profiles.
func (w *Workflow) Members(ctx context.Context, serverID int64) ([]models.UserProfile, error) {
	return w.store.MembersOf(ctx, serverID)
}
