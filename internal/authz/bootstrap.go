package authz

import "fmt"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role      string
	Inherits  []string
	Policies  []Policy
	Immutable bool
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: "readonly_auditor",
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
			Immutable: true,
		},
		{
			Role:     "operations",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/shipments", Action: "*"},
				{Object: "/admin/shipments/:id", Action: "*"},
				{Object: "/admin/shipments/:id/events", Action: "*"},
				{Object: "/admin/shipments/:id/status", Action: "*"},
				{Object: "/admin/shipments/:id/tracking", Action: "*"},
				{Object: "/admin/shipments/:id/tracking/resolve", Action: "*"},
				{Object: "/admin/shipments/:id/review", Action: "*"},
				{Object: "/admin/shipments/:id/sync", Action: "*"},
				{Object: "/admin/shipments/:id/user", Action: "*"},
				{Object: "/admin/shipments/tracking/bulk-validate", Action: "*"},
				{Object: "/admin/shipments/tracking/bulk", Action: "*"},
				{Object: "/admin/leads", Action: "*"},
				{Object: "/admin/leads/:id", Action: "*"},
				{Object: "/admin/leads/:id/convert", Action: "*"},
				{Object: "/admin/users", Action: "*"},
				{Object: "/admin/users/:id", Action: "*"},
				{Object: "/admin/users/:id/shipments", Action: "*"},
				{Object: "/admin/users/:id/disable", Action: "*"},
			},
			Immutable: true,
		},
		{
			Role:     "support",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/shipments/:id/status", Action: "POST"},
				{Object: "/admin/shipments/:id/review", Action: "POST"},
				{Object: "/admin/shipments/:id/sync", Action: "POST"},
				{Object: "/admin/shipments/:id/user", Action: "POST"},
				{Object: "/admin/leads", Action: "POST"},
				{Object: "/admin/leads/:id", Action: "PUT"},
			},
			Immutable: true,
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}

	changed := false
	for _, seed := range BuiltinRoleSeeds() {
		role, err := NormalizeRole(seed.Role)
		if err != nil {
			return err
		}

		exists, err := s.enforcer.HasNamedGroupingPolicy("g", role, roleAnchor)
		if err != nil {
			return fmt.Errorf("check builtin role failed: %w", err)
		}
		if !exists {
			added, err := s.enforcer.AddNamedGroupingPolicy("g", role, roleAnchor)
			if err != nil {
				return fmt.Errorf("create builtin role failed: %w", err)
			}
			if added {
				changed = true
			}
		}

		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			added, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole)
			if err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
			if added {
				changed = true
			}
		}

		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			added, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action)
			if err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
			if added {
				changed = true
			}
		}
	}

	if changed {
		return s.saveAndReload()
	}
	return nil
}
