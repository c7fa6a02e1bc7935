package models

import "time"

type UserProfile struct {
	ID          int64  `json:"id,string"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Password    []byte `json:"-"`
}

type Server struct {
	ID          int64  `json:"id,string"`
	OwnerID     int64  `json:"ownerID,string"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
}

type Role struct {
	ID          int64  `json:"id,string"`
	ServerID    int64  `json:"serverID,string"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
	Permissions int64  `json:"permissions,string"`
	IsEveryone  bool   `json:"isEveryone"`
}

// Membership links one user to one server. RoleID is 0 when the member
// holds no assigned role and falls back to the server's @everyone role.
type Membership struct {
	ServerID int64     `json:"serverID,string"`
	UserID   int64     `json:"userID,string"`
	RoleID   int64     `json:"roleID,string"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Invite struct {
	ID        int64      `json:"id,string"`
	ServerID  int64      `json:"serverID,string"`
	Code      string     `json:"code"`
	CreatedBy int64      `json:"createdBy,string"`
	MaxUses   int        `json:"maxUses"` // 0 = unlimited
	Uses      int        `json:"uses"`
	ExpiresAt *time.Time `json:"expiresAt"` // nil = never
	CreatedAt time.Time  `json:"createdAt"`
}

const (
	ChannelTypeText  = "text"
	ChannelTypeVoice = "voice"
	ChannelTypeDm    = "dm"
)

// Channel belongs to a server, or is a DM channel with ServerID 0 and
// its participants in dm_channel_members.
type Channel struct {
	ID       int64  `json:"id,string"`
	ServerID int64  `json:"serverID,string"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
	ParentID int64  `json:"parentID,string"`
}

type DmChannelMember struct {
	ChannelID int64 `json:"channelID,string"`
	UserID    int64 `json:"userID,string"`
}

type Message struct {
	ID          int64       `json:"id,string"`
	ChannelID   int64       `json:"channelID,string"`
	UserID      int64       `json:"userID,string"`
	Content     string      `json:"content"`
	Attachments string      `json:"attachments"`
	Edited      bool        `json:"edited"`
	CreatedAt   time.Time   `json:"createdAt"`
	Author      UserProfile `json:"author"`
}

// Reaction is unique per (message, user, emoji).
type Reaction struct {
	MessageID int64  `json:"messageID,string"`
	UserID    int64  `json:"userID,string"`
	Emoji     string `json:"emoji"`
}

type Mention struct {
	MessageID       int64 `json:"messageID,string"`
	MentionedUserID int64 `json:"mentionedUserID,string"`
}

const (
	PresenceOnline  = "online"
	PresenceIdle    = "idle"
	PresenceOffline = "offline"
)

type PresenceRecord struct {
	UserID   int64     `json:"userID,string"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

const (
	NotificationMention       = "mention"
	NotificationMessage       = "message"
	NotificationFriendRequest = "friend_request"
	NotificationServerInvite  = "server_invite"
	NotificationSystem        = "system"
)

type Notification struct {
	ID        int64     `json:"id,string"`
	UserID    int64     `json:"userID,string"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Data      string    `json:"data"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type Ban struct {
	ServerID  int64     `json:"serverID,string"`
	UserID    int64     `json:"userID,string"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

type PinnedMessage struct {
	MessageID int64     `json:"messageID,string"`
	ChannelID int64     `json:"channelID,string"`
	PinnedBy  int64     `json:"pinnedBy,string"`
	PinnedAt  time.Time `json:"pinnedAt"`
}

type SearchResult struct {
	Message
	ChannelName string `json:"channelName"`
	ServerName  string `json:"serverName"`
}

type ConfigFile struct {
	Address                  string
	Port                     string
	BehindNginx              bool
	TlsCert                  string
	TlsKey                   string
	PrintHttpRequests        bool
	LogToFile                bool
	LogLevel                 string
	JwtSecret                string
	SnowflakeWorkerID        int64
	SelfContained            bool
	DbUser                   string
	DbPassword               string
	DbAddress                string
	DbPort                   string
	DbDatabase               string
	RedisAddress             string
	RedisPassword            string
	BlobDirectory            string
	PresenceHeartbeatSeconds int
}
