package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Resources and actions checked by the API layer
const (
	ResourceOrders    = "orders"
	ResourceReturns   = "returns"
	ResourceInventory = "inventory"

	ActionCreate       = "create"
	ActionReadOwn      = "read_own"
	ActionReadAny      = "read_any"
	ActionUpdateStatus = "update_status"
	ActionRead         = "read"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var defaultPolicies = [][]string{
	{RoleCustomer, ResourceOrders, ActionCreate},
	{RoleCustomer, ResourceOrders, ActionReadOwn},
	{RoleCustomer, ResourceReturns, ActionCreate},
	{RoleStaff, ResourceOrders, ActionReadAny},
	{RoleStaff, ResourceOrders, ActionUpdateStatus},
	{RoleStaff, ResourceReturns, ActionUpdateStatus},
	{RoleStaff, ResourceInventory, ActionRead},
}

// admin inherits every staff permission
var defaultRoleLinks = [][]string{
	{RoleAdmin, RoleStaff},
}

// Authorizer answers role permission questions with a Casbin RBAC enforcer.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds the enforcer from the built-in model and policy set.
func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load RBAC model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RBAC enforcer: %w", err)
	}

	for _, p := range defaultPolicies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("failed to add policy %v: %w", p, err)
		}
	}
	for _, g := range defaultRoleLinks {
		if _, err := enforcer.AddGroupingPolicy(g[0], g[1]); err != nil {
			return nil, fmt.Errorf("failed to add role link %v: %w", g, err)
		}
	}

	return &Authorizer{enforcer: enforcer}, nil
}

// Allowed reports whether role may perform action on resource.
func (a *Authorizer) Allowed(role, resource, action string) (bool, error) {
	allowed, err := a.enforcer.Enforce(role, resource, action)
	if err != nil {
		return false, fmt.Errorf("RBAC permission check failed: %w", err)
	}
	return allowed, nil
}
