package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversationKey unifies sent and received messages between the same two
// logical parties: "private:<peerUserId>" or "group:<groupId>". It is derived
// locally, never transmitted by the server.
type ConversationKey string

// PrivateKey returns the conversation key for a private chat with peerID.
func PrivateKey(peerID int64) ConversationKey {
	return ConversationKey("private:" + strconv.FormatInt(peerID, 10))
}

// GroupKey returns the conversation key for a group conversation.
func GroupKey(groupID int64) ConversationKey {
	return ConversationKey("group:" + strconv.FormatInt(groupID, 10))
}

// IsGroup reports whether the key addresses a group conversation.
func (k ConversationKey) IsGroup() bool {
	return strings.HasPrefix(string(k), "group:")
}

// PeerID extracts the peer user id from a private key.
func (k ConversationKey) PeerID() (int64, bool) {
	s, ok := strings.CutPrefix(string(k), "private:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// GroupID extracts the group id from a group key.
func (k ConversationKey) GroupID() (int64, bool) {
	s, ok := strings.CutPrefix(string(k), "group:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// ConversationKey computes the key a message belongs to, relative to the
// local user. Messages the local user sent to a peer and messages received
// from that peer collapse into the same conversation.
func (m Message) ConversationKey(localUserID int64) (ConversationKey, error) {
	if m.GroupID != 0 {
		return GroupKey(m.GroupID), nil
	}
	if m.Sender.ID == localUserID {
		if m.Receiver == nil {
			return "", fmt.Errorf("private message %d has no receiver", m.ID)
		}
		return PrivateKey(m.Receiver.ID), nil
	}
	return PrivateKey(m.Sender.ID), nil
}
