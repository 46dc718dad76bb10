package core

import (
	"context"
	"errors"

	"github.com/vinrai007/neww-mesgar10/internal/files"
	"github.com/vinrai007/neww-mesgar10/internal/proto"
	"github.com/vinrai007/neww-mesgar10/internal/store"
)

// MessageStore is the durable side of routing.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *store.Message) error
	IncrementUnread(ctx context.Context, userID int64) error
}

// AttachmentStore persists decoded attachment bytes under a generated name.
type AttachmentStore interface {
	Store(ctx context.Context, data []byte, ext string) (string, error)
	Delete(ctx context.Context, name string) error
}

// HandleInbound persists a frame sent by c and pushes it to every live
// connection of the recipient. The message is stored before any delivery is
// attempted. Rejected frames are reported back to c and returned as errors.
func (h *Hub) HandleInbound(ctx context.Context, c *Client, frame proto.Frame) (*store.Message, error) {
	sender, ok := c.Identity()
	if !ok {
		return nil, h.reject(c, coreError(ErrCodeUnauthorized, "authenticate before sending messages"))
	}
	if err := frame.Validate(); err != nil {
		return nil, h.reject(c, coreError(ErrCodeBadRequest, err.Error()))
	}
	if h.messages == nil {
		return nil, h.reject(c, coreError(ErrCodeDeliveryFailed, "message store unavailable"))
	}

	msg := &store.Message{
		SenderID:    sender.UserID,
		RecipientID: *frame.Recipient,
		Text:        frame.Text,
		Unread:      true,
	}

	if frame.File != nil {
		name, cerr := h.storeAttachment(ctx, frame.File)
		if cerr != nil {
			return nil, h.reject(c, cerr)
		}
		msg.File = &name
	}

	if err := h.messages.CreateMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).
			Int64("sender", msg.SenderID).
			Int64("recipient", msg.RecipientID).
			Msg("persist message")
		if msg.File != nil {
			if derr := h.files.Delete(ctx, *msg.File); derr != nil {
				h.log.Warn().Err(derr).Str("file", *msg.File).Msg("remove orphaned attachment")
			}
		}
		return nil, h.reject(c, coreError(ErrCodeDeliveryFailed, "message could not be saved"))
	}

	if err := h.messages.IncrementUnread(ctx, msg.RecipientID); err != nil {
		h.log.Warn().Err(err).Int64("recipient", msg.RecipientID).Int64("message_id", msg.ID).Msg("increment unread")
	}

	n := h.deliver(msg)
	h.log.Debug().
		Int64("message_id", msg.ID).
		Int64("sender", msg.SenderID).
		Int64("recipient", msg.RecipientID).
		Int("connections", n).
		Msg("message routed")
	return msg, nil
}

func (h *Hub) storeAttachment(ctx context.Context, f *proto.FileData) (string, *CoreError) {
	if h.files == nil {
		return "", coreError(ErrCodeDeliveryFailed, "attachments are not accepted")
	}
	data, _, err := files.DecodeDataURL(f.Data)
	if err != nil {
		return "", coreError(ErrCodeBadRequest, "file data is not valid base64")
	}
	name, err := h.files.Store(ctx, data, files.Extension(f.Name, data))
	if err != nil {
		h.log.Error().Err(err).Str("original", f.Name).Msg("store attachment")
		return "", coreError(ErrCodeDeliveryFailed, "attachment could not be saved")
	}
	return name, nil
}

// deliver queues one shared event for every live connection bound to the
// recipient and returns how many were reached. The sender gets no echo.
func (h *Hub) deliver(msg *store.Message) int {
	ev := &Event{
		Kind: EventDelivery,
		Delivery: &Delivery{
			ID:        msg.ID,
			Sender:    msg.SenderID,
			Recipient: msg.RecipientID,
			Text:      msg.Text,
			File:      msg.File,
		},
	}

	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for _, c := range h.byIdentityLocked(msg.RecipientID) {
		if h.enqueueLocked(c, ev) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.evict(c, "send buffer full")
	}
	return delivered
}

func (h *Hub) reject(c *Client, err *CoreError) error {
	h.Report(c, err)
	return err
}

// Authenticate verifies credential and binds the resulting identity to c.
// On failure c stays registered and unbound, and receives an unauthorized error.
func (h *Hub) Authenticate(ctx context.Context, c *Client, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, h.reject(c, coreError(ErrCodeUnauthorized, "missing credential"))
	}
	if h.verifier == nil {
		return Identity{}, h.reject(c, coreError(ErrCodeUnauthorized, "authentication unavailable"))
	}

	id, err := h.verifier.Verify(ctx, credential)
	if err != nil {
		h.log.Debug().Err(err).Str("client", c.ID).Msg("credential rejected")
		return Identity{}, h.reject(c, coreError(ErrCodeUnauthorized, "invalid credential"))
	}

	if err := h.Bind(c, id); err != nil {
		if errors.Is(err, ErrAlreadyBound) {
			return Identity{}, h.reject(c, coreError(ErrCodeBadRequest, err.Error()))
		}
		return Identity{}, err
	}
	return id, nil
}
