package models

import "strings"

// SessionSeparator joins user and chat ids in the engine-facing session id.
const SessionSeparator = "_"

// SessionKey is the structured form of a session identifier.
type SessionKey struct {
	UserID string
	ChatID string
}

// String renders the delimited wire form "userId_chatId".
func (k SessionKey) String() string {
	return JoinSession(k.UserID, k.ChatID)
}

// JoinSession builds the delimited session id.
func JoinSession(userID, chatID string) string {
	return userID + SessionSeparator + chatID
}

// ChatIDFromSession recovers the chat id by splitting on the first separator and
// re-joining the remainder. A user id containing the separator is therefore not
// recoverable: "u_1_c2_x" yields "1_c2_x". Returns "" when there is no separator.
func ChatIDFromSession(sessionID string) string {
	parts := strings.Split(sessionID, SessionSeparator)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], SessionSeparator)
}

// ParseSession is the inverse of JoinSession under the same first-separator rule.
func ParseSession(sessionID string) (SessionKey, bool) {
	user, chat, ok := strings.Cut(sessionID, SessionSeparator)
	if !ok {
		return SessionKey{}, false
	}
	return SessionKey{UserID: user, ChatID: chat}, true
}
