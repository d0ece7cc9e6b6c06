package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/labstack/echo/v4"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Role permissions inside a tenant. Tenant boundaries are enforced by the
// tenancy kernel; this only decides what a role may do within its own tenant.
const roleModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

const (
	ActRead  = "read"
	ActWrite = "write"
)

// DefaultPolicy is the built-in role table.
var DefaultPolicy = [][]string{
	{"role:admin", "*", "*"},

	{"role:clinician", "patients", "*"},
	{"role:clinician", "clinical", "*"},
	{"role:clinician", "appointments", "*"},
	{"role:clinician", "documents", "*"},
	{"role:clinician", "invoices", ActRead},

	{"role:nurse", "patients", "*"},
	{"role:nurse", "clinical", "*"},
	{"role:nurse", "appointments", "*"},
	{"role:nurse", "documents", "*"},

	{"role:receptionist", "patients", "*"},
	{"role:receptionist", "appointments", "*"},
	{"role:receptionist", "invoices", "*"},
	{"role:receptionist", "documents", ActRead},

	{"role:user", "patients", ActRead},
	{"role:user", "appointments", ActRead},
	{"role:user", "documents", ActRead},
}

// Authorizer answers role permission questions with a casbin enforcer.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer(policy [][]string) (*Authorizer, error) {
	m, err := model.NewModelFromString(roleModel)
	if err != nil {
		return nil, fmt.Errorf("authz: parse model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: new enforcer: %w", err)
	}
	if len(policy) > 0 {
		if _, err := enforcer.AddPolicies(policy); err != nil {
			return nil, fmt.Errorf("authz: load policy: %w", err)
		}
	}
	return &Authorizer{enforcer: enforcer}, nil
}

func SubjectFromRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = "anonymous"
	}
	return "role:" + role
}

// Allowed reports whether the actor's role permits act on obj. Platform
// operators are always allowed.
func (a *Authorizer) Allowed(actor tenancy.Actor, obj, act string) (bool, error) {
	if actor.PlatformAdmin {
		return true, nil
	}
	return a.enforcer.Enforce(SubjectFromRole(actor.Role), obj, act)
}

// Require returns middleware enforcing obj/act. GET and HEAD map to read,
// everything else to write, unless act is given explicitly.
func (a *Authorizer) Require(obj string, act ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			action := ActWrite
			if len(act) > 0 {
				action = act[0]
			} else if m := c.Request().Method; m == http.MethodGet || m == http.MethodHead {
				action = ActRead
			}
			actor, _ := tenancy.FromContext(c.Request().Context())
			ok, err := a.Allowed(actor, obj, action)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "authorization failed")
			}
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("role %q may not %s %s", actor.Role, action, obj))
			}
			return next(c)
		}
	}
}
