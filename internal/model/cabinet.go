package model

import "time"

// Permissions is the set of rights a user holds over someone's cabinet.
type Permissions struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanManage bool `json:"can_manage"`
}

// OwnerPermissions is what a cabinet owner holds over their own cabinet.
var OwnerPermissions = Permissions{CanView: true, CanEdit: true, CanManage: true}

// Normalize expands implied rights: manage implies edit, edit implies view.
func (p Permissions) Normalize() Permissions {
	if p.CanManage {
		p.CanEdit = true
	}
	if p.CanEdit {
		p.CanView = true
	}
	return p
}

// Allows reports whether p covers every right set in need.
func (p Permissions) Allows(need Permissions) bool {
	p = p.Normalize()
	if need.CanView && !p.CanView {
		return false
	}
	if need.CanEdit && !p.CanEdit {
		return false
	}
	if need.CanManage && !p.CanManage {
		return false
	}
	return true
}

// Convenience permission requirements.
var (
	NeedView   = Permissions{CanView: true}
	NeedEdit   = Permissions{CanEdit: true}
	NeedManage = Permissions{CanManage: true}
)

// CabinetMember grants a user delegated access to another user's cabinet.
type CabinetMember struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	MemberID    string      `json:"member_id"`
	MemberEmail string      `json:"member_email,omitempty"`
	MemberName  string      `json:"member_name,omitempty"`
	OwnerEmail  string      `json:"owner_email,omitempty"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
}

// InvitationStatus is the state of a cabinet invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

// CabinetInvitation offers cabinet membership to an email address.
type CabinetInvitation struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	OwnerEmail  string           `json:"owner_email,omitempty"`
	Email       string           `json:"email"`
	Token       string           `json:"-"`
	Status      InvitationStatus `json:"status"`
	Permissions Permissions      `json:"permissions"`
	ExpiresAt   time.Time        `json:"expires_at"`
	CreatedAt   time.Time        `json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// IsExpired reports whether the invitation's deadline has passed.
func (i *CabinetInvitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsOpen reports whether the invitation can still be answered.
func (i *CabinetInvitation) IsOpen(now time.Time) bool {
	return i.Status == InvitationPending && !i.IsExpired(now)
}
