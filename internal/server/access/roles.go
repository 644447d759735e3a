// Package access evaluates roles and permissions. Everything here is a pure
// function over static tables; request guards in the transport layers call it
// with the identity resolved from a verified token.
package access

import "strings"

type Role string

const (
	RoleUser   Role = "user"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

type Permission string

const (
	ReadPosts      Permission = "read:posts"
	CreatePosts    Permission = "create:posts"
	UpdateOwnPosts Permission = "update:own-posts"
	DeleteOwnPosts Permission = "delete:own-posts"
	UpdateAnyPosts Permission = "update:any-posts"
	DeleteAnyPosts Permission = "delete:any-posts"
	CreateComments Permission = "create:comments"
	LikePosts      Permission = "like:posts"
	ManageUsers    Permission = "manage:users"
	ManageRoles    Permission = "manage:roles"
)

var rolePermissions = map[Role]map[Permission]struct{}{
	RoleUser: set(ReadPosts, CreateComments, LikePosts),
	RoleAuthor: set(ReadPosts, CreatePosts, UpdateOwnPosts, DeleteOwnPosts,
		CreateComments, LikePosts),
	RoleAdmin: set(ReadPosts, CreatePosts, UpdateAnyPosts, DeleteAnyPosts,
		CreateComments, LikePosts, ManageUsers, ManageRoles),
}

var roleRank = map[Role]int{
	RoleUser:   1,
	RoleAuthor: 2,
	RoleAdmin:  3,
}

func set(perms ...Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return m
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// IsAtLeast compares roles on the user < author < admin order. Unknown roles
// rank below everything.
func IsAtLeast(role, required Role) bool {
	return roleRank[role] >= roleRank[required]
}

// Allow is the guard rule for a route's role whitelist: admin always passes,
// an empty whitelist admits every authenticated caller, otherwise the role
// must be listed.
func Allow(role Role, whitelist ...Role) bool {
	if role == RoleAdmin || len(whitelist) == 0 {
		return true
	}
	for _, r := range whitelist {
		if r == role {
			return true
		}
	}
	return false
}
