package auth

import "fmt"

// Authorize returns user unchanged when every required action is granted to
// the user's role on resource. An empty action list passes as long as the
// (role, resource) entry exists.
func (m Matrix) Authorize(user User, resource Resource, actions ...Action) (User, error) {
	byResource, ok := m.grants[user.Role]
	if !ok {
		return User{}, deny(KindForbidden, ReasonRoleUnknown, fmt.Errorf("role %q", user.Role))
	}
	allowed, ok := byResource[resource]
	if !ok {
		return User{}, deny(KindForbidden, ReasonResourceDenied, fmt.Errorf("%s on %s", user.Role, resource))
	}
	for _, a := range actions {
		if _, ok := allowed[a]; !ok {
			return User{}, deny(KindForbidden, ReasonActionDenied, fmt.Errorf("%s cannot %s %s", user.Role, a, resource))
		}
	}
	return user, nil
}
