package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

// CabinetService is what CabinetHandler needs from the cabinet service.
type CabinetService interface {
	ListMembers(ctx context.Context, actorID, ownerID string) ([]*model.CabinetMember, error)
	UpdateMember(ctx context.Context, actorID, ownerID, memberRowID string, p model.Permissions) (*model.CabinetMember, error)
	RemoveMember(ctx context.Context, actorID, ownerID, memberRowID string) error
	ListShared(ctx context.Context, userID string) ([]*model.CabinetMember, error)
	Leave(ctx context.Context, userID, ownerID string) error
	Invite(ctx context.Context, input service.InviteInput) (*model.CabinetInvitation, error)
	ListInvitations(ctx context.Context, actorID, ownerID string) ([]*model.CabinetInvitation, error)
	RevokeInvitation(ctx context.Context, actorID, ownerID, id string) error
	GetInvitation(ctx context.Context, token string) (*model.CabinetInvitation, error)
	AcceptInvitation(ctx context.Context, userID, userEmail, token string) (*model.CabinetMember, error)
	DeclineInvitation(ctx context.Context, userEmail, token string) error
}

// CabinetHandler handles memberships and invitations.
type CabinetHandler struct {
	svc    CabinetService
	logger *slog.Logger
}

// NewCabinetHandler creates a new CabinetHandler.
func NewCabinetHandler(svc CabinetService, logger *slog.Logger) *CabinetHandler {
	return &CabinetHandler{svc: svc, logger: logger}
}

// ListMembers handles GET /api/cabinet/members.
func (h *CabinetHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context(), callerID(r), cabinetOwner(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(members, dto.ToMemberResponse))
}

// UpdateMember handles PATCH /api/cabinet/members/{id}.
func (h *CabinetHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateMemberRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	member, err := h.svc.UpdateMember(r.Context(), callerID(r), cabinetOwner(r), chi.URLParam(r, "id"), req.Permissions.ToModel())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToMemberResponse(member))
}

// RemoveMember handles DELETE /api/cabinet/members/{id}.
func (h *CabinetHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.RemoveMember(r.Context(), callerID(r), cabinetOwner(r), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("member_removed", "member_row_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListShared handles GET /api/cabinet/shared.
func (h *CabinetHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	shared, err := h.svc.ListShared(r.Context(), callerID(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(shared, dto.ToMemberResponse))
}

// Leave handles DELETE /api/cabinet/shared/{ownerId}.
func (h *CabinetHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Leave(r.Context(), callerID(r), chi.URLParam(r, "ownerId")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInvitations handles GET /api/cabinet/invitations.
func (h *CabinetHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.svc.ListInvitations(r.Context(), callerID(r), cabinetOwner(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(invitations, dto.ToInvitationResponse))
}

// Invite handles POST /api/cabinet/invitations.
func (h *CabinetHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req dto.InviteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	inv, err := h.svc.Invite(r.Context(), service.InviteInput{
		ActorID:     callerID(r),
		OwnerID:     cabinetOwner(r),
		Email:       req.Email,
		Permissions: req.Permissions.ToModel(),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToInvitationResponse(inv))
}

// RevokeInvitation handles DELETE /api/cabinet/invitations/{id}.
func (h *CabinetHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeInvitation(r.Context(), callerID(r), cabinetOwner(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetInvitation handles GET /api/invitations/{token}. It is public so the
// accept page can render before the invitee signs in.
func (h *CabinetHandler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToInvitationResponse(inv))
}

// AcceptInvitation handles POST /api/invitations/{token}/accept.
func (h *CabinetHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	member, err := h.svc.AcceptInvitation(r.Context(), p.UserID, p.Email, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("invitation_accepted", "owner_id", member.OwnerID, "member_id", member.MemberID)
	writeJSON(w, http.StatusOK, dto.ToMemberResponse(member))
}

// DeclineInvitation handles POST /api/invitations/{token}/decline.
func (h *CabinetHandler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	if err := h.svc.DeclineInvitation(r.Context(), p.Email, chi.URLParam(r, "token")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
