package storage

import (
	"chat-core/domain"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Key schema. Free-form segments are query-escaped so a ':' inside a user or
// room identifier can never widen a prefix scan.
//
//	msg:{room}:{unixnano19}:{id}      message record, ordered by creation time
//	msgid:{id}                        -> primary message key
//	reaction:{message}:{user}:{emoji} reaction record, unique by key
//	room:{id}                         room record
//	member:{room}:{user}              membership record
//	membership:{user}:{room}          reverse membership index
//	invite:{id}                       invitation record
//	invitepending:{room}:{user}       -> invitation id while pending
//	notif:{user}:{unixnano19}:{id}    notification record
//	notifid:{id}                      -> primary notification key
//	profile:{id}                      profile record

// seekNewest sorts after every 19-digit timestamp of a reverse scan.
const seekNewest = "9999999999999999999"

func segment(s string) string {
	return url.QueryEscape(s)
}

func timestamp(at time.Time) string {
	return fmt.Sprintf("%019d", at.UnixNano())
}

func messagePrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", segment(string(room))))
}

func messageKey(room domain.RoomID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s:%s", segment(string(room)), timestamp(at), id))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func reactionPrefix(message uuid.UUID) []byte {
	return []byte(fmt.Sprintf("reaction:%s:", message))
}

func reactionKey(message uuid.UUID, userID, emoji string) []byte {
	return []byte(fmt.Sprintf("reaction:%s:%s:%s", message, segment(userID), segment(emoji)))
}

const roomPrefix = "room:"

func roomKey(id domain.RoomID) []byte {
	return []byte(roomPrefix + segment(string(id)))
}

func memberPrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("member:%s:", segment(string(room))))
}

func memberKey(room domain.RoomID, userID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", segment(string(room)), segment(userID)))
}

func membershipPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("membership:%s:", segment(userID)))
}

func membershipKey(userID string, room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("membership:%s:%s", segment(userID), segment(string(room))))
}

func inviteKey(id string) []byte {
	return []byte("invite:" + segment(id))
}

const invitePrefix = "invite:"

func pendingInviteKey(room domain.RoomID, userID string) []byte {
	return []byte(fmt.Sprintf("invitepending:%s:%s", segment(string(room)), segment(userID)))
}

func notificationPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("notif:%s:", segment(userID)))
}

func notificationKey(userID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("notif:%s:%s:%s", segment(userID), timestamp(at), id))
}

func notificationIndexKey(id uuid.UUID) []byte {
	return []byte("notifid:" + id.String())
}

func profileKey(id string) []byte {
	return []byte("profile:" + segment(id))
}
