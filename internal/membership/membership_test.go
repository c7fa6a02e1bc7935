package membership_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/membership"
	"chatapp-client/internal/models"
	"chatapp-client/internal/permissions"
	"chatapp-client/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()

	sugar := zap.NewNop().Sugar()
	bus := feed.NewLocalBus(sugar)
	cfg := &models.ConfigFile{
		SelfContained: true,
		DbDatabase:    filepath.Join(t.TempDir(), "test.db"),
	}

	s, err := store.Setup(cfg, sugar, bus)
	if err != nil {
		t.Fatalf("store.Setup failed unexpectedly: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		bus.Close()
	})
	return s
}

func newUser(t *testing.T, s *store.Store, username string) models.UserProfile {
	t.Helper()
	user, err := s.CreateAccount(context.Background(), username+"@example.com", username, username, "Password1")
	if err != nil {
		t.Fatalf("CreateAccount(%q) failed unexpectedly: %v", username, err)
	}
	return user
}

func TestInviteFlow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	joiner := newUser(t, s, "joiner")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	joinerFlow := membership.NewWorkflow(s, joiner.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}

	invite, err := ownerFlow.CreateInvite(ctx, server.ID, 0, 0)
	if err != nil {
		t.Fatalf("CreateInvite failed unexpectedly: %v", err)
	}

	joined, err := joinerFlow.AcceptInvite(ctx, invite.Code)
	if err != nil {
		t.Fatalf("AcceptInvite failed unexpectedly: %v", err)
	}
	if joined.ID != server.ID {
		t.Errorf("joined server %d, want %d", joined.ID, server.ID)
	}

	servers, err := joinerFlow.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers failed unexpectedly: %v", err)
	}
	if len(servers) != 1 || servers[0].ID != server.ID {
		t.Errorf("joiner's server list is %+v", servers)
	}
}

func TestJoinByName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	joiner := newUser(t, s, "joiner")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	joinerFlow := membership.NewWorkflow(s, joiner.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}

	joined, err := joinerFlow.JoinByName(ctx, "testserver")
	if err != nil {
		t.Fatalf("JoinByName failed unexpectedly: %v", err)
	}
	if joined.ID != server.ID {
		t.Errorf("joined server %d, want %d", joined.ID, server.ID)
	}

	// joining again must be a no-op success
	if _, err := joinerFlow.JoinByName(ctx, "testserver"); err != nil {
		t.Errorf("repeated JoinByName failed unexpectedly: %v", err)
	}

	servers, err := joinerFlow.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers failed unexpectedly: %v", err)
	}
	if len(servers) != 1 || servers[0].ID != server.ID {
		t.Errorf("joiner's server list is %+v", servers)
	}

	if _, err := joinerFlow.JoinByName(ctx, "no-such-server"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("got error %v, want %v", err, apperr.ErrNotFound)
	}
}

func TestRoleLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	member := newUser(t, s, "member")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	memberFlow := membership.NewWorkflow(s, member.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.JoinByName(ctx, "testserver"); err != nil {
		t.Fatalf("JoinByName failed unexpectedly: %v", err)
	}

	role, err := ownerFlow.CreateRole(ctx, server.ID, "moderator", "#00ff00", 1, int64(permissions.ManageServer))
	if err != nil {
		t.Fatalf("CreateRole failed unexpectedly: %v", err)
	}

	// without the role the member is not allowed to issue invites
	if _, err := memberFlow.CreateInvite(ctx, server.ID, 0, 0); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("CreateInvite before role assignment returned %v, want %v", err, apperr.ErrPermissionDenied)
	}

	if err := ownerFlow.AssignRole(ctx, server.ID, member.ID, role.ID); err != nil {
		t.Fatalf("AssignRole failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.CreateInvite(ctx, server.ID, 0, 0); err != nil {
		t.Errorf("CreateInvite after role assignment failed unexpectedly: %v", err)
	}

	// shrinking the role's bitmask revokes the permission again
	if err := ownerFlow.UpdateRole(ctx, server.ID, role.ID, "moderator", "#00ff00", 1, 0); err != nil {
		t.Fatalf("UpdateRole failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.CreateInvite(ctx, server.ID, 0, 0); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("CreateInvite after bitmask shrink returned %v, want %v", err, apperr.ErrPermissionDenied)
	}

	if err := ownerFlow.DeleteRole(ctx, server.ID, role.ID); err != nil {
		t.Fatalf("DeleteRole failed unexpectedly: %v", err)
	}
	roles, err := ownerFlow.Roles(ctx, server.ID)
	if err != nil {
		t.Fatalf("Roles failed unexpectedly: %v", err)
	}
	if len(roles) != 1 || !roles[0].IsEveryone {
		t.Errorf("role list is %+v after deletion, want only @everyone", roles)
	}
}

func TestRoleManagementRequiresPermission(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	member := newUser(t, s, "member")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	memberFlow := membership.NewWorkflow(s, member.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.JoinByName(ctx, "testserver"); err != nil {
		t.Fatalf("JoinByName failed unexpectedly: %v", err)
	}

	role, err := ownerFlow.CreateRole(ctx, server.ID, "moderator", "", 1, 0)
	if err != nil {
		t.Fatalf("CreateRole failed unexpectedly: %v", err)
	}

	if _, err := memberFlow.CreateRole(ctx, server.ID, "sneaky", "", 2, int64(permissions.ManageServer)); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("CreateRole by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}
	if err := memberFlow.AssignRole(ctx, server.ID, member.ID, role.ID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("AssignRole by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}
	if err := memberFlow.DeleteRole(ctx, server.ID, role.ID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("DeleteRole by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}
}

func TestChannelManagement(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	member := newUser(t, s, "member")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	memberFlow := membership.NewWorkflow(s, member.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.JoinByName(ctx, "testserver"); err != nil {
		t.Fatalf("JoinByName failed unexpectedly: %v", err)
	}

	channel, err := s.CreateChannel(ctx, server.ID, "off-topic", models.ChannelTypeText)
	if err != nil {
		t.Fatalf("CreateChannel failed unexpectedly: %v", err)
	}

	if err := memberFlow.UpdateChannel(ctx, server.ID, channel.ID, "renamed", 2); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("UpdateChannel by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}

	if err := ownerFlow.UpdateChannel(ctx, server.ID, channel.ID, "renamed", 2); err != nil {
		t.Fatalf("UpdateChannel failed unexpectedly: %v", err)
	}
	updated, err := s.Channel(ctx, channel.ID)
	if err != nil {
		t.Fatalf("Channel failed unexpectedly: %v", err)
	}
	if updated.Name != "renamed" || updated.Position != 2 {
		t.Errorf("channel after update is %+v", updated)
	}

	if err := ownerFlow.DeleteChannel(ctx, server.ID, channel.ID); err != nil {
		t.Fatalf("DeleteChannel failed unexpectedly: %v", err)
	}
	if _, err := s.Channel(ctx, channel.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted channel lookup returned %v, want %v", err, apperr.ErrNotFound)
	}
}

func TestOrdinaryMemberCannotInviteOrModerate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	member := newUser(t, s, "member")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	memberFlow := membership.NewWorkflow(s, member.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}
	invite, err := ownerFlow.CreateInvite(ctx, server.ID, 0, 0)
	if err != nil {
		t.Fatalf("CreateInvite failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.AcceptInvite(ctx, invite.Code); err != nil {
		t.Fatalf("AcceptInvite failed unexpectedly: %v", err)
	}

	if _, err := memberFlow.CreateInvite(ctx, server.ID, 0, 0); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("CreateInvite by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}
	if err := memberFlow.Kick(ctx, server.ID, owner.ID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Kick by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}
	if err := memberFlow.Ban(ctx, server.ID, owner.ID, "no"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Ban by ordinary member returned %v, want %v", err, apperr.ErrPermissionDenied)
	}
}

func TestBanBlocksRejoin(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	troll := newUser(t, s, "troll")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	trollFlow := membership.NewWorkflow(s, troll.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}
	invite, err := ownerFlow.CreateInvite(ctx, server.ID, 0, 0)
	if err != nil {
		t.Fatalf("CreateInvite failed unexpectedly: %v", err)
	}
	if _, err := trollFlow.AcceptInvite(ctx, invite.Code); err != nil {
		t.Fatalf("AcceptInvite failed unexpectedly: %v", err)
	}

	if err := ownerFlow.Ban(ctx, server.ID, troll.ID, "spam"); err != nil {
		t.Fatalf("Ban failed unexpectedly: %v", err)
	}

	if _, err := trollFlow.AcceptInvite(ctx, invite.Code); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("banned rejoin returned %v, want %v", err, apperr.ErrPermissionDenied)
	}

	if err := ownerFlow.Unban(ctx, server.ID, troll.ID); err != nil {
		t.Fatalf("Unban failed unexpectedly: %v", err)
	}
	if _, err := trollFlow.AcceptInvite(ctx, invite.Code); err != nil {
		t.Errorf("rejoin after unban failed unexpectedly: %v", err)
	}
}

func TestLeaveServer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	owner := newUser(t, s, "owner")
	member := newUser(t, s, "member")

	ownerFlow := membership.NewWorkflow(s, owner.ID, sugar)
	memberFlow := membership.NewWorkflow(s, member.ID, sugar)

	server, err := ownerFlow.CreateServer(ctx, "testserver")
	if err != nil {
		t.Fatalf("CreateServer failed unexpectedly: %v", err)
	}
	invite, err := ownerFlow.CreateInvite(ctx, server.ID, 0, 0)
	if err != nil {
		t.Fatalf("CreateInvite failed unexpectedly: %v", err)
	}
	if _, err := memberFlow.AcceptInvite(ctx, invite.Code); err != nil {
		t.Fatalf("AcceptInvite failed unexpectedly: %v", err)
	}

	if err := memberFlow.LeaveServer(ctx, server.ID); err != nil {
		t.Fatalf("LeaveServer failed unexpectedly: %v", err)
	}

	servers, err := memberFlow.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers failed unexpectedly: %v", err)
	}
	if len(servers) != 0 {
		t.Errorf("server list is %+v after leaving, want empty", servers)
	}
}
