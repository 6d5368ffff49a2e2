package conn

import (
	"strconv"
	"strings"
)

// Outbound application destinations.
const (
	DestPrivateSend = "/app/private.send"
	DestGroupSend   = "/app/group.send"
	DestTyping      = "/app/typing"
)

// Fixed per-user inbound queues, subscribed on every (re)connect.
const (
	QueuePrivateMessages = "/user/queue/messages"
	QueuePrivateTyping   = "/user/queue/typing"
)

const (
	groupTopicPrefix       = "/topic/group/"
	groupTypingTopicPrefix = "/topic/typing/group/"
)

// GroupTopic is the broadcast destination for a group's messages.
func GroupTopic(groupID int64) string {
	return groupTopicPrefix + strconv.FormatInt(groupID, 10)
}

// GroupTypingTopic is the broadcast destination for a group's typing events.
func GroupTypingTopic(groupID int64) string {
	return groupTypingTopicPrefix + strconv.FormatInt(groupID, 10)
}

// IsTypingDestination reports whether dest delivers typing events rather
// than messages.
func IsTypingDestination(dest string) bool {
	return dest == QueuePrivateTyping || strings.HasPrefix(dest, groupTypingTopicPrefix)
}

// ParseGroupTopic extracts the group id from a group message destination.
func ParseGroupTopic(dest string) (int64, bool) {
	return parseTopicID(dest, groupTopicPrefix)
}

// ParseGroupTypingTopic extracts the group id from a group typing destination.
func ParseGroupTypingTopic(dest string) (int64, bool) {
	return parseTopicID(dest, groupTypingTopicPrefix)
}

func parseTopicID(dest, prefix string) (int64, bool) {
	s, ok := strings.CutPrefix(dest, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
