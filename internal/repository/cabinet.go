package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for cabinet repository operations.
var (
	ErrMemberNotFound       = errors.New("cabinet member not found")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrInvitationNotPending = errors.New("invitation is no longer pending")
	ErrSelfMembership       = errors.New("owner cannot be a member of own cabinet")
)

// GetMembership returns the member row granting memberID access to ownerID's
// cabinet.
func (r *Repository) GetMembership(ctx context.Context, ownerID, memberID string) (*model.CabinetMember, error) {
	query := `
		SELECT m.id, m.owner_id, m.member_id, u.email, u.name, o.email, m.can_view, m.can_edit, m.can_manage, m.created_at
		FROM cabinet_members m
		JOIN users u ON u.id = m.member_id
		JOIN users o ON o.id = m.owner_id
		WHERE m.owner_id = $1 AND m.member_id = $2
	`
	return scanMember(r.pool.QueryRow(ctx, query, ownerID, memberID))
}

// GetMember returns a member row of the owner's cabinet by row ID.
func (r *Repository) GetMember(ctx context.Context, ownerID, id string) (*model.CabinetMember, error) {
	query := `
		SELECT m.id, m.owner_id, m.member_id, u.email, u.name, o.email, m.can_view, m.can_edit, m.can_manage, m.created_at
		FROM cabinet_members m
		JOIN users u ON u.id = m.member_id
		JOIN users o ON o.id = m.owner_id
		WHERE m.owner_id = $1 AND m.id = $2
	`
	return scanMember(r.pool.QueryRow(ctx, query, ownerID, id))
}

// ListMembers returns the members of the owner's cabinet.
func (r *Repository) ListMembers(ctx context.Context, ownerID string) ([]*model.CabinetMember, error) {
	query := `
		SELECT m.id, m.owner_id, m.member_id, u.email, u.name, o.email, m.can_view, m.can_edit, m.can_manage, m.created_at
		FROM cabinet_members m
		JOIN users u ON u.id = m.member_id
		JOIN users o ON o.id = m.owner_id
		WHERE m.owner_id = $1
		ORDER BY m.created_at
	`
	return r.queryMembers(ctx, query, ownerID)
}

// ListSharedCabinets returns the memberships memberID holds in other cabinets.
func (r *Repository) ListSharedCabinets(ctx context.Context, memberID string) ([]*model.CabinetMember, error) {
	query := `
		SELECT m.id, m.owner_id, m.member_id, u.email, u.name, o.email, m.can_view, m.can_edit, m.can_manage, m.created_at
		FROM cabinet_members m
		JOIN users u ON u.id = m.member_id
		JOIN users o ON o.id = m.owner_id
		WHERE m.member_id = $1
		ORDER BY o.email
	`
	return r.queryMembers(ctx, query, memberID)
}

// dropQueuedTasks is a CTE body deleting the queued engagement tasks a
// member created on the owner's accounts. It expects a CTE named changed
// with owner_id, member_id and can_edit columns.
const dropQueuedTasks = `
	dropped AS (
		DELETE FROM engagement_tasks t
		USING changed c, reddit_accounts a
		WHERE NOT c.can_edit
		  AND t.user_id = c.member_id
		  AND a.id = t.account_id
		  AND a.user_id = c.owner_id
		  AND t.status IN ('pending', 'failed')
	)
`

// execMembershipChange runs a membership statement written as the changed
// CTE, drops tasks the member may no longer run, and reports whether a row
// matched.
func (r *Repository) execMembershipChange(ctx context.Context, changed string, args ...any) (bool, error) {
	query := `WITH changed AS (` + changed + `),` + dropQueuedTasks + `SELECT COUNT(*) FROM changed`

	var n int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateMemberPermissions replaces a member's rights. Losing edit rights
// drops the member's queued tasks on the owner's accounts.
func (r *Repository) UpdateMemberPermissions(ctx context.Context, ownerID, id string, p model.Permissions) error {
	p = p.Normalize()
	found, err := r.execMembershipChange(ctx, `
		UPDATE cabinet_members
		SET can_view = $3, can_edit = $4, can_manage = $5
		WHERE owner_id = $1 AND id = $2
		RETURNING owner_id, member_id, can_edit
	`, ownerID, id, p.CanView, p.CanEdit, p.CanManage)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if !found {
		return ErrMemberNotFound
	}
	return nil
}

// DeleteMember removes a member row from the owner's cabinet by row ID,
// together with the member's queued tasks on the owner's accounts.
func (r *Repository) DeleteMember(ctx context.Context, ownerID, id string) error {
	found, err := r.execMembershipChange(ctx, `
		DELETE FROM cabinet_members WHERE owner_id = $1 AND id = $2
		RETURNING owner_id, member_id, FALSE AS can_edit
	`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if !found {
		return ErrMemberNotFound
	}
	return nil
}

// DeleteMembership removes memberID from ownerID's cabinet, together with
// the member's queued tasks on the owner's accounts.
func (r *Repository) DeleteMembership(ctx context.Context, ownerID, memberID string) error {
	found, err := r.execMembershipChange(ctx, `
		DELETE FROM cabinet_members WHERE owner_id = $1 AND member_id = $2
		RETURNING owner_id, member_id, FALSE AS can_edit
	`, ownerID, memberID)
	if err != nil {
		return fmt.Errorf("failed to leave cabinet: %w", err)
	}
	if !found {
		return ErrMemberNotFound
	}
	return nil
}

// CreateInvitation inserts a pending invitation.
func (r *Repository) CreateInvitation(ctx context.Context, inv *model.CabinetInvitation) error {
	query := `
		INSERT INTO cabinet_invitations (id, owner_id, email, token, status, can_view, can_edit, can_manage, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	p := inv.Permissions.Normalize()
	_, err := r.pool.Exec(ctx, query,
		inv.ID,
		inv.OwnerID,
		inv.Email,
		inv.Token,
		string(inv.Status),
		p.CanView,
		p.CanEdit,
		p.CanManage,
		inv.ExpiresAt,
		inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

const invitationSelect = `
	SELECT i.id, i.owner_id, o.email, i.email, i.token, i.status, i.can_view, i.can_edit, i.can_manage,
	       i.expires_at, i.created_at, i.responded_at
	FROM cabinet_invitations i
	JOIN users o ON o.id = i.owner_id
`

// GetInvitationByToken looks an invitation up by its secret token.
func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (*model.CabinetInvitation, error) {
	return scanInvitation(r.pool.QueryRow(ctx, invitationSelect+` WHERE i.token = $1`, token))
}

// GetInvitation returns one of the owner's invitations.
func (r *Repository) GetInvitation(ctx context.Context, ownerID, id string) (*model.CabinetInvitation, error) {
	return scanInvitation(r.pool.QueryRow(ctx, invitationSelect+` WHERE i.owner_id = $1 AND i.id = $2`, ownerID, id))
}

// ListInvitations returns the owner's invitations, newest first.
func (r *Repository) ListInvitations(ctx context.Context, ownerID string) ([]*model.CabinetInvitation, error) {
	rows, err := r.pool.Query(ctx, invitationSelect+` WHERE i.owner_id = $1 ORDER BY i.created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*model.CabinetInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return invitations, nil
}

// SetInvitationStatus moves a pending invitation to status.
func (r *Repository) SetInvitationStatus(ctx context.Context, id string, status model.InvitationStatus, at time.Time) error {
	query := `
		UPDATE cabinet_invitations
		SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.pool.Exec(ctx, query, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvitationNotPending
	}
	return nil
}

// AcceptInvitation marks the invitation accepted and grants its permissions
// to memberID in one transaction. An existing membership is updated.
func (r *Repository) AcceptInvitation(ctx context.Context, inv *model.CabinetInvitation, member *model.CabinetMember) error {
	if inv.OwnerID == member.MemberID {
		return ErrSelfMembership
	}

	p := member.Permissions.Normalize()
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE cabinet_invitations
			SET status = 'accepted', responded_at = $2
			WHERE id = $1 AND status = 'pending'
		`, inv.ID, member.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrInvitationNotPending
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO cabinet_members (id, owner_id, member_id, can_view, can_edit, can_manage, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (owner_id, member_id) DO UPDATE SET
				can_view = EXCLUDED.can_view,
				can_edit = EXCLUDED.can_edit,
				can_manage = EXCLUDED.can_manage
			RETURNING id, created_at
		`, member.ID, inv.OwnerID, member.MemberID, p.CanView, p.CanEdit, p.CanManage, member.CreatedAt).
			Scan(&member.ID, &member.CreatedAt)
		if err != nil {
			if isCheckViolation(err) {
				return ErrSelfMembership
			}
			return fmt.Errorf("failed to upsert member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	member.OwnerID = inv.OwnerID
	member.OwnerEmail = inv.OwnerEmail
	member.Permissions = p
	return nil
}

// ExpireInvitations marks every overdue pending invitation expired.
func (r *Repository) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE cabinet_invitations
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *Repository) queryMembers(ctx context.Context, query string, arg string) ([]*model.CabinetMember, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.CabinetMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func scanMember(row pgx.Row) (*model.CabinetMember, error) {
	var m model.CabinetMember
	err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&m.MemberID,
		&m.MemberEmail,
		&m.MemberName,
		&m.OwnerEmail,
		&m.Permissions.CanView,
		&m.Permissions.CanEdit,
		&m.Permissions.CanManage,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	return &m, nil
}

func scanInvitation(row pgx.Row) (*model.CabinetInvitation, error) {
	var inv model.CabinetInvitation
	err := row.Scan(
		&inv.ID,
		&inv.OwnerID,
		&inv.OwnerEmail,
		&inv.Email,
		&inv.Token,
		&inv.Status,
		&inv.Permissions.CanView,
		&inv.Permissions.CanEdit,
		&inv.Permissions.CanManage,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.RespondedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}
	return &inv, nil
}
