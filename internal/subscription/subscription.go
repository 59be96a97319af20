// Package subscription tracks which connections currently have which group open.
// Subscriptions are ephemeral and distinct from durable group membership.
package subscription

import "sort"

// Table holds the group -> connections index and its reverse.
// It is not safe for concurrent use; the hub serialises all access.
type Table struct {

	// ConnectionsByGroup holds the connections subscribed to each group
	ConnectionsByGroup map[string]map[string]struct{}

	// GroupsByConnection lets a disconnect clean up in O(groups joined)
	GroupsByConnection map[string]map[string]struct{}
}

// New returns a pointer to an empty Table
func New() *Table {
	return &Table{
		ConnectionsByGroup: make(map[string]map[string]struct{}),
		GroupsByConnection: make(map[string]map[string]struct{}),
	}
}

// Join subscribes conn to group, returning false if it was already subscribed
func (t *Table) Join(conn, group string) bool {

	if conn == "" || group == "" {
		return false
	}

	if _, ok := t.ConnectionsByGroup[group][conn]; ok {
		return false
	}

	if _, ok := t.ConnectionsByGroup[group]; !ok {
		t.ConnectionsByGroup[group] = make(map[string]struct{})
	}
	t.ConnectionsByGroup[group][conn] = struct{}{}

	if _, ok := t.GroupsByConnection[conn]; !ok {
		t.GroupsByConnection[conn] = make(map[string]struct{})
	}
	t.GroupsByConnection[conn][group] = struct{}{}

	return true
}

// Leave unsubscribes conn from group, returning false if it was not subscribed
func (t *Table) Leave(conn, group string) bool {

	if _, ok := t.ConnectionsByGroup[group][conn]; !ok {
		return false
	}

	t.remove(conn, group)

	if groups, ok := t.GroupsByConnection[conn]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(t.GroupsByConnection, conn)
		}
	}

	return true
}

// RemoveConnection unsubscribes conn from every group, returning the groups it had joined
func (t *Table) RemoveConnection(conn string) []string {

	left := []string{}

	for group := range t.GroupsByConnection[conn] {
		t.remove(conn, group)
		left = append(left, group)
	}

	delete(t.GroupsByConnection, conn)

	sort.Strings(left)

	return left
}

// remove is for internal use only; it does not touch the reverse index
func (t *Table) remove(conn, group string) {

	conns, ok := t.ConnectionsByGroup[group]
	if !ok {
		return
	}

	delete(conns, conn)

	if len(conns) == 0 {
		delete(t.ConnectionsByGroup, group)
	}
}

// Members returns the connections currently subscribed to group
func (t *Table) Members(group string) []string {

	conns := []string{}

	for c := range t.ConnectionsByGroup[group] {
		conns = append(conns, c)
	}

	sort.Strings(conns)

	return conns
}

// Groups returns the groups conn is currently subscribed to
func (t *Table) Groups(conn string) []string {

	groups := []string{}

	for g := range t.GroupsByConnection[conn] {
		groups = append(groups, g)
	}

	sort.Strings(groups)

	return groups
}

// IsJoined returns true if conn is subscribed to group
func (t *Table) IsJoined(conn, group string) bool {
	_, ok := t.ConnectionsByGroup[group][conn]
	return ok
}
