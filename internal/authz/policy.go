// Package authz decides which role may take which order action.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"

	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/status"
)

const resource = "order"

const modelConf = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// DefaultPolicy lets agents mark orders delivered and customers open their
// box. Both sides may verify a package image.
const DefaultPolicy = `
p, agent, order, mark_delivered
p, agent, order, verify_package
p, customer, order, open_box
p, customer, order, create_order
p, customer, order, verify_package
`

type Policy struct {
	enforcer casbin.IEnforcer
}

func New(adapter persist.Adapter) (*Policy, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	return &Policy{enforcer: e}, nil
}

func NewDefault() (*Policy, error) {
	return New(stringadapter.NewAdapter(DefaultPolicy))
}

// Allows reports whether role may take action. ActionNone is never allowed.
func (p *Policy) Allows(role models.Role, action status.Action) (bool, error) {
	if action == status.ActionNone {
		return false, nil
	}
	ok, err := p.enforcer.Enforce(string(role), resource, string(action))
	if err != nil {
		return false, fmt.Errorf("enforce %s/%s: %w", role, action, err)
	}
	return ok, nil
}
