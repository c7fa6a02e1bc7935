package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"chatapp-client/internal/blob"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/jwt"
	"chatapp-client/internal/keyValue"
	"chatapp-client/internal/models"
	"chatapp-client/internal/server"
	"chatapp-client/internal/store"
)

type testServer struct {
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sugar := zap.NewNop().Sugar()
	bus := feed.NewLocalBus(sugar)
	blobDir := t.TempDir()
	cfg := &models.ConfigFile{
		SelfContained: true,
		DbDatabase:    filepath.Join(t.TempDir(), "test.db"),
		JwtSecret:     "test-secret",
		BlobDirectory: blobDir,
	}

	s, err := store.Setup(cfg, sugar, bus)
	if err != nil {
		t.Fatalf("store.Setup failed unexpectedly: %v", err)
	}

	handler := server.Setup(cfg, sugar, s, bus,
		blob.NewStore(blobDir, ""),
		jwt.NewSigner(cfg.JwtSecret, false),
		keyValue.Setup(sugar, nil, true))

	srv := httptest.NewServer(handler.Router())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
		bus.Close()
	})

	return &testServer{srv: srv}
}

// client is one authenticated user's HTTP client holding its JWT cookie.
type client struct {
	t    *testing.T
	base string
	jwt  *http.Cookie
}

func (ts *testServer) register(t *testing.T, username string) *client {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"email":           username + "@example.com",
		"username":        username,
		"password":        "Password1",
		"confirmPassword": "Password1",
	})
	resp, err := http.Post(ts.srv.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register returned %d", resp.StatusCode)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "JWT" {
			return &client{t: t, base: ts.srv.URL, jwt: cookie}
		}
	}
	t.Fatal("register set no JWT cookie")
	return nil
}

func (c *client) do(method string, path string, payload any) *http.Response {
	c.t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshaling payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatalf("building request: %v", err)
	}
	req.AddCookie(c.jwt)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func (c *client) doJSON(method string, path string, payload any, into any) {
	c.t.Helper()

	resp := c.do(method, path, payload)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("%s %s returned %d", method, path, resp.StatusCode)
	}
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			c.t.Fatalf("decoding %s response: %v", path, err)
		}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "owner")

	body, _ := json.Marshal(map[string]string{"email": "owner@example.com", "password": "Password1"})
	resp, err := http.Post(ts.srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login returned %d", resp.StatusCode)
	}

	body, _ = json.Marshal(map[string]string{"email": "owner@example.com", "password": "wrong"})
	resp, err = http.Post(ts.srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login returned %d, want 401", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/server/fetch")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("got %d without a cookie, want 401", resp.StatusCode)
	}
}

func TestServerAndInviteFlow(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register(t, "owner")
	joiner := ts.register(t, "joiner")

	var created models.Server
	owner.doJSON("POST", "/api/server/create", map[string]string{"name": "testserver"}, &created)
	if created.Name != "testserver" {
		t.Fatalf("created server is %+v", created)
	}

	var invite models.Invite
	owner.doJSON("POST", fmt.Sprintf("/api/server/%d/invites/create", created.ID), map[string]int{"maxUses": 0}, &invite)
	if invite.Code == "" {
		t.Fatal("invite has no code")
	}

	var joined models.Server
	joiner.doJSON("POST", "/api/invite/accept", map[string]string{"code": invite.Code}, &joined)
	if joined.ID != created.ID {
		t.Errorf("joined server %d, want %d", joined.ID, created.ID)
	}

	var servers []models.Server
	joiner.doJSON("GET", "/api/server/fetch", nil, &servers)
	if len(servers) != 1 {
		t.Errorf("joiner sees %d servers, want 1", len(servers))
	}

	resp := joiner.do("POST", "/api/invite/accept", map[string]string{"code": "ZZZZZZZZ"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown code returned %d, want 404", resp.StatusCode)
	}
}

func TestMessageAndMentionFlow(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register(t, "owner")
	alice := ts.register(t, "alice")

	var created models.Server
	owner.doJSON("POST", "/api/server/create", map[string]string{"name": "testserver"}, &created)

	var invite models.Invite
	owner.doJSON("POST", fmt.Sprintf("/api/server/%d/invites/create", created.ID), map[string]int{}, &invite)
	alice.doJSON("POST", "/api/invite/accept", map[string]string{"code": invite.Code}, nil)

	var channels []models.Channel
	owner.doJSON("GET", fmt.Sprintf("/api/server/%d/channels", created.ID), nil, &channels)
	if len(channels) != 1 {
		t.Fatalf("got %d channels, want #general", len(channels))
	}

	var message models.Message
	owner.doJSON("POST", "/api/message/create", map[string]string{
		"channelID": fmt.Sprint(channels[0].ID),
		"content":   "welcome @alice",
	}, &message)
	if message.ID == 0 {
		t.Fatal("message has no id")
	}

	var messages []models.Message
	owner.doJSON("GET", fmt.Sprintf("/api/message/fetch?channelID=%d", channels[0].ID), nil, &messages)
	if len(messages) != 1 || messages[0].Content != "welcome @alice" {
		t.Errorf("fetched messages are %+v", messages)
	}

	var inbox []models.Notification
	alice.doJSON("GET", "/api/notification/fetch", nil, &inbox)
	if len(inbox) != 1 || inbox[0].Type != models.NotificationMention {
		t.Fatalf("alice's inbox is %+v", inbox)
	}

	alice.doJSON("POST", "/api/notification/read", map[string]string{"notificationID": fmt.Sprint(inbox[0].ID)}, nil)
	alice.doJSON("GET", "/api/notification/fetch", nil, &inbox)
	if !inbox[0].IsRead {
		t.Error("notification still unread after marking")
	}
}

func TestReactionRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register(t, "owner")

	var created models.Server
	owner.doJSON("POST", "/api/server/create", map[string]string{"name": "testserver"}, &created)
	var channels []models.Channel
	owner.doJSON("GET", fmt.Sprintf("/api/server/%d/channels", created.ID), nil, &channels)

	var message models.Message
	owner.doJSON("POST", "/api/message/create", map[string]string{
		"channelID": fmt.Sprint(channels[0].ID),
		"content":   "react here",
	}, &message)

	var toggled map[string]bool
	owner.doJSON("POST", "/api/message/react", map[string]string{
		"messageID": fmt.Sprint(message.ID),
		"emoji":     "👍",
	}, &toggled)
	if !toggled["added"] {
		t.Error("first toggle did not add")
	}

	owner.doJSON("POST", "/api/message/react", map[string]string{
		"messageID": fmt.Sprint(message.ID),
		"emoji":     "👍",
	}, &toggled)
	if toggled["added"] {
		t.Error("second toggle did not remove")
	}
}

func TestJoinServerByNameRoute(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register(t, "owner")
	joiner := ts.register(t, "joiner")

	var created models.Server
	owner.doJSON("POST", "/api/server/create", map[string]string{"name": "testserver"}, &created)

	var joined models.Server
	joiner.doJSON("POST", "/api/server/join", map[string]string{"name": "testserver"}, &joined)
	if joined.ID != created.ID {
		t.Errorf("joined server %d, want %d", joined.ID, created.ID)
	}

	// a second join is a no-op success
	joiner.doJSON("POST", "/api/server/join", map[string]string{"name": "testserver"}, nil)

	var servers []models.Server
	joiner.doJSON("GET", "/api/server/fetch", nil, &servers)
	if len(servers) != 1 {
		t.Errorf("joiner sees %d servers after double join, want 1", len(servers))
	}

	resp := joiner.do("POST", "/api/server/join", map[string]string{"name": "no-such-server"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown server name returned %d, want 404", resp.StatusCode)
	}
}

func TestRoleAssignmentGrantsPermissions(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register(t, "owner")
	member := ts.register(t, "member")

	var created models.Server
	owner.doJSON("POST", "/api/server/create", map[string]string{"name": "testserver"}, &created)
	member.doJSON("POST", "/api/server/join", map[string]string{"name": "testserver"}, nil)

	var memberProfile models.UserProfile
	member.doJSON("GET", "/api/user/fetch", nil, &memberProfile)

	// ordinary members cannot create roles
	resp := member.do("POST", fmt.Sprintf("/api/server/%d/roles/create", created.ID), map[string]string{
		"name": "sneaky", "permissions": "1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("role create by ordinary member returned %d, want 403", resp.StatusCode)
	}

	var role models.Role
	owner.doJSON("POST", fmt.Sprintf("/api/server/%d/roles/create", created.ID), map[string]string{
		"name":        "admin",
		"color":       "#ff0000",
		"permissions": "1", // the manage-server bit
	}, &role)

	// before assignment the member cannot issue invites
	resp = member.do("POST", fmt.Sprintf("/api/server/%d/invites/create", created.ID), map[string]int{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("invite create before role assignment returned %d, want 403", resp.StatusCode)
	}

	owner.doJSON("POST", fmt.Sprintf("/api/server/%d/roles/assign", created.ID), map[string]string{
		"userID": fmt.Sprint(memberProfile.ID),
		"roleID": fmt.Sprint(role.ID),
	}, nil)

	member.doJSON("POST", fmt.Sprintf("/api/server/%d/invites/create", created.ID), map[string]int{}, nil)

	var roles []models.Role
	owner.doJSON("GET", fmt.Sprintf("/api/server/%d/roles", created.ID), nil, &roles)
	if len(roles) != 2 {
		t.Errorf("role list has %d entries, want @everyone plus admin", len(roles))
	}
}

func TestDmFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	carol := ts.register(t, "carol")

	var aliceProfile, bobProfile models.UserProfile
	alice.doJSON("GET", "/api/user/fetch", nil, &aliceProfile)
	bob.doJSON("GET", "/api/user/fetch", nil, &bobProfile)

	var channel models.Channel
	alice.doJSON("POST", "/api/dm/create", map[string][]string{
		"userIDs": {fmt.Sprint(bobProfile.ID)},
	}, &channel)
	if channel.ServerID != 0 || channel.Type != models.ChannelTypeDm {
		t.Fatalf("DM channel is %+v", channel)
	}

	// the same participant set maps onto the same channel
	var again models.Channel
	bob.doJSON("POST", "/api/dm/create", map[string][]string{
		"userIDs": {fmt.Sprint(aliceProfile.ID)},
	}, &again)
	if again.ID != channel.ID {
		t.Errorf("second DM create opened channel %d, want existing %d", again.ID, channel.ID)
	}

	var channels []models.Channel
	bob.doJSON("GET", "/api/dm/fetch", nil, &channels)
	if len(channels) == 0 || channels[0].ID != channel.ID {
		t.Fatalf("bob's DM list is %+v", channels)
	}

	alice.doJSON("POST", "/api/message/create", map[string]string{
		"channelID": fmt.Sprint(channel.ID),
		"content":   "secret plan",
	}, nil)

	var messages []models.Message
	bob.doJSON("GET", fmt.Sprintf("/api/message/fetch?channelID=%d", channel.ID), nil, &messages)
	if len(messages) != 1 || messages[0].Content != "secret plan" {
		t.Errorf("bob's DM messages are %+v", messages)
	}

	// non-participants may not write into the conversation
	resp := carol.do("POST", "/api/message/create", map[string]string{
		"channelID": fmt.Sprint(channel.ID),
		"content":   "let me in",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("DM write by non-participant returned %d, want 403", resp.StatusCode)
	}

	var results []models.SearchResult
	alice.doJSON("GET", fmt.Sprintf("/api/message/search?term=secret&channelID=%d", channel.ID), nil, &results)
	if len(results) != 1 {
		t.Errorf("search found %d DM results, want 1", len(results))
	}
}

func TestModerationRequiresPermission(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register(t, "owner")
	member := ts.register(t, "member")

	var created models.Server
	owner.doJSON("POST", "/api/server/create", map[string]string{"name": "testserver"}, &created)
	var invite models.Invite
	owner.doJSON("POST", fmt.Sprintf("/api/server/%d/invites/create", created.ID), map[string]int{}, &invite)
	member.doJSON("POST", "/api/invite/accept", map[string]string{"code": invite.Code}, nil)

	resp := member.do("POST", fmt.Sprintf("/api/server/%d/kick", created.ID), map[string]string{"userID": "1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("kick by ordinary member returned %d, want 403", resp.StatusCode)
	}
}
