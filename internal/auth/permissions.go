package auth

import "sort"

// Matrix is an immutable role -> resource -> allowed actions table. Build it
// once at startup and share it by value; nothing mutates it after NewMatrix
// returns.
type Matrix struct {
	grants map[Role]map[Resource]map[Action]struct{}
}

// NewMatrix copies grants into a Matrix. A resource listed with an empty
// action slice is kept as an entry with no actions.
func NewMatrix(grants map[Role]map[Resource][]Action) Matrix {
	m := Matrix{grants: make(map[Role]map[Resource]map[Action]struct{}, len(grants))}
	for role, resources := range grants {
		byResource := make(map[Resource]map[Action]struct{}, len(resources))
		for resource, actions := range resources {
			set := make(map[Action]struct{}, len(actions))
			for _, a := range actions {
				set[a] = struct{}{}
			}
			byResource[resource] = set
		}
		m.grants[role] = byResource
	}
	return m
}

// DefaultMatrix returns the production permission table.
func DefaultMatrix() Matrix {
	rw := []Action{ActionRead, ActionWrite}
	return NewMatrix(map[Role]map[Resource][]Action{
		RoleAdmin: {
			ResourceOrganization: rw,
			ResourceBranch:       rw,
			ResourceUser:         rw,
			ResourceCall:         rw,
			ResourceLead:         rw,
			ResourcePrompt:       rw,
			ResourceMetric:       rw,
			ResourceInvite:       rw,
		},
		RoleManager: {
			ResourceOrganization: rw,
			ResourceBranch:       rw,
			ResourceUser:         rw,
			ResourceCall:         rw,
			ResourceLead:         rw,
			ResourcePrompt:       {ActionRead},
			ResourceMetric:       rw,
		},
	})
}

// HasRole reports whether the role has any entry.
func (m Matrix) HasRole(role Role) bool {
	_, ok := m.grants[role]
	return ok
}

// Allowed returns the sorted actions granted to role on resource, and
// whether the (role, resource) entry exists at all.
func (m Matrix) Allowed(role Role, resource Resource) ([]Action, bool) {
	set, ok := m.grants[role][resource]
	if !ok {
		return nil, false
	}
	out := make([]Action, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}

// Roles lists the roles present in the table.
func (m Matrix) Roles() []Role {
	out := make([]Role, 0, len(m.grants))
	for r := range m.grants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
