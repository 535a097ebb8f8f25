package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"vcgate/internal/identity"
)

type PolicySuite struct {
	suite.Suite
	snapshot *Snapshot
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func (s *PolicySuite) SetupTest() {
	snap, err := NewSnapshot(DefaultRules(), true)
	s.Require().NoError(err)
	s.snapshot = snap
}

func ident(roles ...string) identity.Identity {
	return identity.Identity{Subject: "test-user", Roles: roles}
}

func (s *PolicySuite) TestDefaultRoleModel() {
	tests := []struct {
		name      string
		roles     []string
		operation string
		want      Effect
	}{
		{"viewer reads vm list", []string{"viewer"}, "list_vms", Allow},
		{"viewer reads details", []string{"viewer"}, "get_vm_details", Allow},
		{"viewer cannot start", []string{"viewer"}, "start_vm", Deny},
		{"viewer cannot delete", []string{"viewer"}, "delete_vm", Deny},
		{"viewer cannot reach maintenance mode", []string{"viewer"}, "enter_maintenance_mode", Deny},
		{"operator starts vm", []string{"operator"}, "start_vm", Allow},
		{"operator creates snapshot", []string{"operator"}, "create_snapshot", Allow},
		{"operator reverts snapshot", []string{"operator"}, "revert_snapshot", Allow},
		{"operator clears snapshots", []string{"operator"}, "delete_all_snapshots", Allow},
		{"operator cannot delete vm", []string{"operator"}, "delete_vm", Deny},
		{"operator cannot migrate", []string{"operator"}, "migrate_vm", Deny},
		{"operator cannot reboot host", []string{"operator"}, "reboot_host", Deny},
		{"admin does everything", []string{"admin"}, "delete_vm", Allow},
		{"admin reboots host", []string{"admin"}, "reboot_host", Allow},
		{"no roles denies", nil, "list_vms", Deny},
		{"unknown role denies", []string{"auditor"}, "list_vms", Deny},
		{"union of roles", []string{"viewer", "operator"}, "start_vm", Allow},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, s.snapshot.Authorize(ident(tt.roles...), tt.operation))
		})
	}
}

func (s *PolicySuite) TestDenyPrecedence() {
	// An explicit deny beats any number of matching allows for the same
	// identity, regardless of rule order.
	rules := []Rule{
		{Role: "operator", OperationPattern: "*", Effect: Allow},
		{Role: "operator", OperationPattern: "delete_*", Effect: Deny},
		{Role: "admin", OperationPattern: "*", Effect: Allow},
	}
	snap, err := NewSnapshot(rules, true)
	s.Require().NoError(err)

	s.Equal(Allow, snap.Authorize(ident("operator"), "start_vm"))
	s.Equal(Deny, snap.Authorize(ident("operator"), "delete_vm"))
	// A deny attached to one held role wins even when another held role allows.
	s.Equal(Deny, snap.Authorize(ident("operator", "admin"), "delete_vm"))
}

func (s *PolicySuite) TestDisabledAllowsEverything() {
	snap, err := NewSnapshot(DefaultRules(), false)
	s.Require().NoError(err)

	s.Equal(Allow, snap.Authorize(ident(), "delete_vm"))
	s.Equal(Allow, snap.Authorize(ident("viewer"), "reboot_host"))
}

func (s *PolicySuite) TestNewSnapshotValidation() {
	s.Run("invalid glob pattern rejected", func() {
		_, err := NewSnapshot([]Rule{{Role: "viewer", OperationPattern: "[", Effect: Allow}}, true)
		s.Error(err)
	})

	s.Run("invalid effect rejected", func() {
		_, err := NewSnapshot([]Rule{{Role: "viewer", OperationPattern: "list_*", Effect: "maybe"}}, true)
		s.Error(err)
	})

	s.Run("empty rule set compiles and denies", func() {
		snap, err := NewSnapshot(nil, true)
		s.Require().NoError(err)
		s.Equal(Deny, snap.Authorize(ident("admin"), "list_vms"))
	})
}

func (s *PolicySuite) TestLoadFile() {
	dir := s.T().TempDir()

	s.Run("valid file loads", func() {
		p := filepath.Join(dir, "policy.json")
		content := `[{"role":"viewer","operation_pattern":"list_*","effect":"allow"}]`
		s.Require().NoError(os.WriteFile(p, []byte(content), 0o600))

		snap, err := LoadFile(p, true)
		s.Require().NoError(err)
		s.Equal(Allow, snap.Authorize(ident("viewer"), "list_vms"))
		s.Equal(Deny, snap.Authorize(ident("viewer"), "get_vm_details"))
	})

	s.Run("malformed json fails", func() {
		p := filepath.Join(dir, "broken.json")
		s.Require().NoError(os.WriteFile(p, []byte("{not json"), 0o600))

		_, err := LoadFile(p, true)
		s.Error(err)
	})

	s.Run("missing file fails", func() {
		_, err := LoadFile(filepath.Join(dir, "absent.json"), true)
		s.Error(err)
	})
}
