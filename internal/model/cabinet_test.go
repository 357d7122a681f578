package model

import (
	"testing"
	"time"
)

func TestPermissions_Allows(t *testing.T) {
	tests := []struct {
		name string
		have Permissions
		need Permissions
		want bool
	}{
		{"owner allows manage", OwnerPermissions, NeedManage, true},
		{"view only allows view", Permissions{CanView: true}, NeedView, true},
		{"view only denies edit", Permissions{CanView: true}, NeedEdit, false},
		{"edit implies view", Permissions{CanEdit: true}, NeedView, true},
		{"edit denies manage", Permissions{CanEdit: true}, NeedManage, false},
		{"manage implies edit", Permissions{CanManage: true}, NeedEdit, true},
		{"none denies view", Permissions{}, NeedView, false},
		{"empty need always allowed", Permissions{}, Permissions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.have.Allows(tt.need); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissions_Normalize(t *testing.T) {
	got := Permissions{CanManage: true}.Normalize()
	if !got.CanView || !got.CanEdit || !got.CanManage {
		t.Errorf("expected manage to imply all rights, got %+v", got)
	}
}

func TestCabinetInvitation_IsOpen(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		inv  CabinetInvitation
		want bool
	}{
		{"pending in future", CabinetInvitation{Status: InvitationPending, ExpiresAt: now.Add(time.Hour)}, true},
		{"pending past deadline", CabinetInvitation{Status: InvitationPending, ExpiresAt: now.Add(-time.Second)}, false},
		{"pending exactly at deadline", CabinetInvitation{Status: InvitationPending, ExpiresAt: now}, false},
		{"accepted", CabinetInvitation{Status: InvitationAccepted, ExpiresAt: now.Add(time.Hour)}, false},
		{"revoked", CabinetInvitation{Status: InvitationRevoked, ExpiresAt: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inv.IsOpen(now); got != tt.want {
				t.Errorf("IsOpen() = %v, want %v", got, tt.want)
			}
		})
	}
}
