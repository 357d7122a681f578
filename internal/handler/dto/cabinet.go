package dto

import (
	"time"

	"github.com/cabinet/cabinet/internal/model"
)

// PermissionsRequest carries permission flags.
type PermissionsRequest struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanManage bool `json:"can_manage"`
}

// ToModel converts the flags, expanding implied rights.
func (p PermissionsRequest) ToModel() model.Permissions {
	return model.Permissions{CanView: p.CanView, CanEdit: p.CanEdit, CanManage: p.CanManage}.Normalize()
}

// InviteRequest represents the request body for inviting a member.
type InviteRequest struct {
	Email       string             `json:"email"`
	Permissions PermissionsRequest `json:"permissions"`
}

// UpdateMemberRequest represents the request body for changing a member's rights.
type UpdateMemberRequest struct {
	Permissions PermissionsRequest `json:"permissions"`
}

// MemberResponse represents a cabinet membership in API responses.
type MemberResponse struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	OwnerEmail  string            `json:"owner_email,omitempty"`
	MemberID    string            `json:"member_id"`
	MemberEmail string            `json:"member_email,omitempty"`
	MemberName  string            `json:"member_name,omitempty"`
	Permissions model.Permissions `json:"permissions"`
	CreatedAt   time.Time         `json:"created_at"`
}

// InvitationResponse represents an invitation in API responses.
type InvitationResponse struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	OwnerEmail  string            `json:"owner_email,omitempty"`
	Email       string            `json:"email"`
	Status      string            `json:"status"`
	Permissions model.Permissions `json:"permissions"`
	ExpiresAt   time.Time         `json:"expires_at"`
	CreatedAt   time.Time         `json:"created_at"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`
}

// ToMemberResponse converts a CabinetMember model to MemberResponse DTO.
func ToMemberResponse(m *model.CabinetMember) MemberResponse {
	return MemberResponse{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		OwnerEmail:  m.OwnerEmail,
		MemberID:    m.MemberID,
		MemberEmail: m.MemberEmail,
		MemberName:  m.MemberName,
		Permissions: m.Permissions,
		CreatedAt:   m.CreatedAt,
	}
}

// ToInvitationResponse converts a CabinetInvitation model to InvitationResponse DTO.
func ToInvitationResponse(i *model.CabinetInvitation) InvitationResponse {
	return InvitationResponse{
		ID:          i.ID,
		OwnerID:     i.OwnerID,
		OwnerEmail:  i.OwnerEmail,
		Email:       i.Email,
		Status:      string(i.Status),
		Permissions: i.Permissions,
		ExpiresAt:   i.ExpiresAt,
		CreatedAt:   i.CreatedAt,
		RespondedAt: i.RespondedAt,
	}
}
