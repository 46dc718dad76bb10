package http

import (
	"time"

	"github.com/samber/lo"

	"github.com/vinrai007/neww-mesgar10/internal/core"
	"github.com/vinrai007/neww-mesgar10/internal/proto"
	"github.com/vinrai007/neww-mesgar10/internal/store"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// MeResponse describes the caller.
type MeResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Unread   int64  `json:"unread"`
}

// MessageResponse represents a stored message in history responses.
type MessageResponse struct {
	ID        int64     `json:"id"`
	Sender    int64     `json:"sender"`
	Recipient int64     `json:"recipient"`
	Text      *string   `json:"text"`
	File      *string   `json:"file"`
	Unread    bool      `json:"unread"`
	CreatedAt time.Time `json:"createdAt"`
}

// usersToResponse drops the caller and flags who is online.
func usersToResponse(users []*store.User, callerID int64, online []core.Identity) []UserResponse {
	onlineIDs := lo.SliceToMap(online, func(id core.Identity) (int64, struct{}) {
		return id.UserID, struct{}{}
	})
	others := lo.Filter(users, func(u *store.User, _ int) bool { return u.ID != callerID })
	return lo.Map(others, func(u *store.User, _ int) UserResponse {
		_, isOnline := onlineIDs[u.ID]
		return UserResponse{ID: u.ID, Username: u.Username, Online: isOnline}
	})
}

func messagesToResponse(msgs []*store.Message) []MessageResponse {
	return lo.Map(msgs, func(m *store.Message, _ int) MessageResponse {
		return MessageResponse{
			ID:        m.ID,
			Sender:    m.SenderID,
			Recipient: m.RecipientID,
			Text:      m.Text,
			File:      m.File,
			Unread:    m.Unread,
			CreatedAt: m.CreatedAt,
		}
	})
}

func presenceToProto(online []core.Identity) proto.Presence {
	return proto.Presence{
		Online: lo.Map(online, func(id core.Identity, _ int) proto.OnlineUser {
			return proto.OnlineUser{UserID: id.UserID, Username: id.Username}
		}),
	}
}
