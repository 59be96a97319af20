package store

import (
	"fmt"
	"net/url"

	"github.com/practable/teamchat/internal/scope"
)

// ids are escaped so that a ':' inside an id cannot collide with the key separator

func esc(id string) string {
	return url.QueryEscape(id)
}

func globalKey() string {
	return "global"
}

func directKey(a, b string) string {
	return "direct:" + scope.DirectKey(esc(a), esc(b))
}

func groupKey(group string) string {
	return "group:" + esc(group)
}

func userKey(id string) []byte {
	return []byte("user:" + esc(id))
}

func friendKey(a, b string) []byte {
	return []byte("friend:" + esc(a) + ":" + esc(b))
}

func groupRecordKey(id string) []byte {
	return []byte("grouprec:" + esc(id))
}

func memberPrefix(group string) []byte {
	return []byte("member:" + esc(group) + ":")
}

func memberKey(group, identity string) []byte {
	return append(memberPrefix(group), []byte(esc(identity))...)
}

func messagePrefix(conversation string) []byte {
	return []byte("msg:" + conversation + ":")
}

// messageKey sorts chronologically because the timestamp is zero-padded to 19 digits;
// the id breaks ties between messages stored in the same nanosecond
func messageKey(conversation string, m Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversation, m.Timestamp.UnixNano(), m.ID))
}
