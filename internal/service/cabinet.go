package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/mailer"
	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
)

// Cabinet errors.
var (
	ErrForbidden           = errors.New("insufficient permissions for this cabinet")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationClosed    = errors.New("invitation is no longer open")
	ErrInvitationRecipient = errors.New("invitation is addressed to another email")
	ErrSelfInvite          = errors.New("cannot invite yourself")
	ErrNoPermissions       = errors.New("at least one permission must be granted")
	ErrMemberNotFound      = errors.New("cabinet member not found")
)

// invitationTokenBytes is the entropy of an invitation token.
const invitationTokenBytes = 32

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// CabinetStore persists memberships and invitations.
type CabinetStore interface {
	GetMembership(ctx context.Context, ownerID, memberID string) (*model.CabinetMember, error)
	GetMember(ctx context.Context, ownerID, id string) (*model.CabinetMember, error)
	ListMembers(ctx context.Context, ownerID string) ([]*model.CabinetMember, error)
	ListSharedCabinets(ctx context.Context, memberID string) ([]*model.CabinetMember, error)
	UpdateMemberPermissions(ctx context.Context, ownerID, id string, p model.Permissions) error
	DeleteMember(ctx context.Context, ownerID, id string) error
	DeleteMembership(ctx context.Context, ownerID, memberID string) error
	CreateInvitation(ctx context.Context, inv *model.CabinetInvitation) error
	GetInvitationByToken(ctx context.Context, token string) (*model.CabinetInvitation, error)
	GetInvitation(ctx context.Context, ownerID, id string) (*model.CabinetInvitation, error)
	ListInvitations(ctx context.Context, ownerID string) ([]*model.CabinetInvitation, error)
	SetInvitationStatus(ctx context.Context, id string, status model.InvitationStatus, at time.Time) error
	AcceptInvitation(ctx context.Context, inv *model.CabinetInvitation, member *model.CabinetMember) error
	ExpireInvitations(ctx context.Context, now time.Time) (int64, error)
}

// CabinetConfig configures a CabinetService.
type CabinetConfig struct {
	Store  CabinetStore
	Users  UserStore
	Mailer mailer.Mailer
	// PublicURL is the web app origin used to build accept links.
	PublicURL     string
	InvitationTTL time.Duration
	Metrics       metrics.Recorder
	Logger        *slog.Logger
}

// CabinetService decides who may act on a cabinet and manages sharing.
type CabinetService struct {
	store     CabinetStore
	users     UserStore
	mailer    mailer.Mailer
	publicURL string
	ttl       time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewCabinetService creates a CabinetService.
func NewCabinetService(cfg CabinetConfig) *CabinetService {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = DefaultInvitationTTL
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CabinetService{
		store:     cfg.Store,
		users:     cfg.Users,
		mailer:    cfg.Mailer,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		ttl:       cfg.InvitationTTL,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "cabinet"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Permissions returns what actorID may do in ownerID's cabinet.
func (s *CabinetService) Permissions(ctx context.Context, actorID, ownerID string) (model.Permissions, error) {
	if actorID == ownerID {
		return model.OwnerPermissions, nil
	}
	member, err := s.store.GetMembership(ctx, ownerID, actorID)
	if errors.Is(err, repository.ErrMemberNotFound) {
		return model.Permissions{}, nil
	}
	if err != nil {
		return model.Permissions{}, fmt.Errorf("failed to load membership: %w", err)
	}
	return member.Permissions.Normalize(), nil
}

// Authorize returns ErrForbidden unless actorID holds need in ownerID's
// cabinet.
func (s *CabinetService) Authorize(ctx context.Context, actorID, ownerID string, need model.Permissions) error {
	p, err := s.Permissions(ctx, actorID, ownerID)
	if err != nil {
		return err
	}
	if !p.Allows(need) {
		return ErrForbidden
	}
	return nil
}

// ListMembers returns the members of ownerID's cabinet.
func (s *CabinetService) ListMembers(ctx context.Context, actorID, ownerID string) ([]*model.CabinetMember, error) {
	if err := s.Authorize(ctx, actorID, ownerID, model.NeedManage); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, ownerID)
}

// UpdateMember replaces a member's permissions.
func (s *CabinetService) UpdateMember(ctx context.Context, actorID, ownerID, memberRowID string, p model.Permissions) (*model.CabinetMember, error) {
	if err := s.Authorize(ctx, actorID, ownerID, model.NeedManage); err != nil {
		return nil, err
	}
	p = p.Normalize()
	if !p.CanView {
		return nil, ErrNoPermissions
	}

	if err := s.store.UpdateMemberPermissions(ctx, ownerID, memberRowID, p); err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	member, err := s.store.GetMember(ctx, ownerID, memberRowID)
	if errors.Is(err, repository.ErrMemberNotFound) {
		return nil, ErrMemberNotFound
	}
	return member, err
}

// RemoveMember revokes a member's access.
func (s *CabinetService) RemoveMember(ctx context.Context, actorID, ownerID, memberRowID string) error {
	if err := s.Authorize(ctx, actorID, ownerID, model.NeedManage); err != nil {
		return err
	}
	if err := s.store.DeleteMember(ctx, ownerID, memberRowID); err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	return nil
}

// ListShared returns the cabinets userID has been given access to.
func (s *CabinetService) ListShared(ctx context.Context, userID string) ([]*model.CabinetMember, error) {
	return s.store.ListSharedCabinets(ctx, userID)
}

// Leave removes userID from ownerID's cabinet.
func (s *CabinetService) Leave(ctx context.Context, userID, ownerID string) error {
	if err := s.store.DeleteMembership(ctx, ownerID, userID); err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	return nil
}

// InviteInput defines input for inviting someone to a cabinet.
type InviteInput struct {
	ActorID     string
	OwnerID     string
	Email       string
	Permissions model.Permissions
}

// Invite creates a pending invitation and emails the accept link. Mail
// delivery failures are logged and do not fail the invitation.
func (s *CabinetService) Invite(ctx context.Context, input InviteInput) (*model.CabinetInvitation, error) {
	if err := s.Authorize(ctx, input.ActorID, input.OwnerID, model.NeedManage); err != nil {
		return nil, err
	}

	email, err := validateEmail(input.Email)
	if err != nil {
		return nil, err
	}
	p := input.Permissions.Normalize()
	if !p.CanView {
		return nil, ErrNoPermissions
	}

	owner, err := s.users.GetUserByID(ctx, input.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cabinet owner: %w", err)
	}
	if email == normalizeEmail(owner.Email) {
		return nil, ErrSelfInvite
	}
	if input.ActorID != input.OwnerID {
		actor, err := s.users.GetUserByID(ctx, input.ActorID)
		if err != nil {
			return nil, fmt.Errorf("failed to load inviter: %w", err)
		}
		if email == normalizeEmail(actor.Email) {
			return nil, ErrSelfInvite
		}
	}

	token, err := auth.GenerateToken(invitationTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := &model.CabinetInvitation{
		ID:          newID(),
		OwnerID:     input.OwnerID,
		OwnerEmail:  owner.Email,
		Email:       email,
		Token:       token,
		Status:      model.InvitationPending,
		Permissions: p,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	s.metrics.IncInvitation("created")

	if err := s.mailer.SendInvitation(ctx, mailer.Invitation{
		To:           inv.Email,
		InviterEmail: owner.Email,
		AcceptURL:    s.AcceptURL(inv.Token),
		ExpiresAt:    inv.ExpiresAt,
		Rights:       rightNames(p),
	}); err != nil {
		s.metrics.IncInvitation("mail_failed")
		s.logger.Warn("invitation email not sent",
			slog.String("invitation_id", inv.ID),
			slog.String("error", err.Error()),
		)
	}

	return inv, nil
}

// AcceptURL is the web app link that answers an invitation.
func (s *CabinetService) AcceptURL(token string) string {
	return s.publicURL + "/invitations/" + token
}

// ListInvitations returns the invitations sent for ownerID's cabinet.
func (s *CabinetService) ListInvitations(ctx context.Context, actorID, ownerID string) ([]*model.CabinetInvitation, error) {
	if err := s.Authorize(ctx, actorID, ownerID, model.NeedManage); err != nil {
		return nil, err
	}
	return s.store.ListInvitations(ctx, ownerID)
}

// RevokeInvitation withdraws a pending invitation.
func (s *CabinetService) RevokeInvitation(ctx context.Context, actorID, ownerID, id string) error {
	if err := s.Authorize(ctx, actorID, ownerID, model.NeedManage); err != nil {
		return err
	}
	inv, err := s.store.GetInvitation(ctx, ownerID, id)
	if err != nil {
		return mapInvitationError(err)
	}
	if err := s.store.SetInvitationStatus(ctx, inv.ID, model.InvitationRevoked, s.now()); err != nil {
		return mapInvitationError(err)
	}
	s.metrics.IncInvitation("revoked")
	return nil
}

// GetInvitation returns the invitation behind a token, as shown to its
// recipient before answering.
func (s *CabinetService) GetInvitation(ctx context.Context, token string) (*model.CabinetInvitation, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, mapInvitationError(err)
	}
	if inv.Status == model.InvitationPending && inv.IsExpired(s.now()) {
		inv.Status = model.InvitationExpired
	}
	return inv, nil
}

// AcceptInvitation grants the invitation's permissions to the user.
func (s *CabinetService) AcceptInvitation(ctx context.Context, userID, userEmail, token string) (*model.CabinetMember, error) {
	inv, err := s.openInvitation(ctx, userEmail, token)
	if err != nil {
		return nil, err
	}
	if inv.OwnerID == userID {
		return nil, ErrSelfInvite
	}

	member := &model.CabinetMember{
		ID:          newID(),
		MemberID:    userID,
		MemberEmail: normalizeEmail(userEmail),
		Permissions: inv.Permissions,
		CreatedAt:   s.now(),
	}
	if err := s.store.AcceptInvitation(ctx, inv, member); err != nil {
		if errors.Is(err, repository.ErrSelfMembership) {
			return nil, ErrSelfInvite
		}
		return nil, mapInvitationError(err)
	}

	s.metrics.IncInvitation("accepted")
	s.logger.Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.String("owner_id", inv.OwnerID),
		slog.String("member_id", userID),
	)
	return member, nil
}

// DeclineInvitation refuses the invitation.
func (s *CabinetService) DeclineInvitation(ctx context.Context, userEmail, token string) error {
	inv, err := s.openInvitation(ctx, userEmail, token)
	if err != nil {
		return err
	}
	if err := s.store.SetInvitationStatus(ctx, inv.ID, model.InvitationDeclined, s.now()); err != nil {
		return mapInvitationError(err)
	}
	s.metrics.IncInvitation("declined")
	return nil
}

// ExpireInvitations marks overdue pending invitations expired.
func (s *CabinetService) ExpireInvitations(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireInvitations(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		s.metrics.IncInvitation("expired")
	}
	return n, nil
}

// openInvitation loads a pending, unexpired invitation addressed to email.
// A pending invitation found past its deadline is marked expired.
func (s *CabinetService) openInvitation(ctx context.Context, email, token string) (*model.CabinetInvitation, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, mapInvitationError(err)
	}
	if normalizeEmail(inv.Email) != normalizeEmail(email) {
		return nil, ErrInvitationRecipient
	}

	now := s.now()
	if inv.Status == model.InvitationPending && inv.IsExpired(now) {
		if err := s.store.SetInvitationStatus(ctx, inv.ID, model.InvitationExpired, now); err == nil {
			s.metrics.IncInvitation("expired")
		}
		return nil, ErrInvitationClosed
	}
	if !inv.IsOpen(now) {
		return nil, ErrInvitationClosed
	}
	return inv, nil
}

func mapInvitationError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInvitationNotFound):
		return ErrInvitationNotFound
	case errors.Is(err, repository.ErrInvitationNotPending):
		return ErrInvitationClosed
	default:
		return err
	}
}

func rightNames(p model.Permissions) []string {
	var names []string
	if p.CanView {
		names = append(names, "view accounts")
	}
	if p.CanEdit {
		names = append(names, "edit accounts")
	}
	if p.CanManage {
		names = append(names, "manage members")
	}
	return names
}
