package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cabinet/cabinet/internal/mailer"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailExists
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type fakeCabinets struct {
	mu          sync.Mutex
	members     []*model.CabinetMember
	invitations []*model.CabinetInvitation
}

func (f *fakeCabinets) GetMembership(_ context.Context, ownerID, memberID string) (*model.CabinetMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.OwnerID == ownerID && m.MemberID == memberID {
			return m, nil
		}
	}
	return nil, repository.ErrMemberNotFound
}

func (f *fakeCabinets) GetMember(_ context.Context, ownerID, id string) (*model.CabinetMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.OwnerID == ownerID && m.ID == id {
			return m, nil
		}
	}
	return nil, repository.ErrMemberNotFound
}

func (f *fakeCabinets) ListMembers(_ context.Context, ownerID string) ([]*model.CabinetMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.CabinetMember
	for _, m := range f.members {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeCabinets) ListSharedCabinets(_ context.Context, memberID string) ([]*model.CabinetMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.CabinetMember
	for _, m := range f.members {
		if m.MemberID == memberID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeCabinets) UpdateMemberPermissions(_ context.Context, ownerID, id string, p model.Permissions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.OwnerID == ownerID && m.ID == id {
			m.Permissions = p
			return nil
		}
	}
	return repository.ErrMemberNotFound
}

func (f *fakeCabinets) DeleteMember(_ context.Context, ownerID, id string) error {
	return f.remove(func(m *model.CabinetMember) bool { return m.OwnerID == ownerID && m.ID == id })
}

func (f *fakeCabinets) DeleteMembership(_ context.Context, ownerID, memberID string) error {
	return f.remove(func(m *model.CabinetMember) bool { return m.OwnerID == ownerID && m.MemberID == memberID })
}

func (f *fakeCabinets) remove(match func(*model.CabinetMember) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.members)
	f.members = slices.DeleteFunc(f.members, match)
	if len(f.members) == n {
		return repository.ErrMemberNotFound
	}
	return nil
}

func (f *fakeCabinets) CreateInvitation(_ context.Context, inv *model.CabinetInvitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations = append(f.invitations, inv)
	return nil
}

func (f *fakeCabinets) GetInvitationByToken(_ context.Context, token string) (*model.CabinetInvitation, error) {
	return f.findInvitation(func(i *model.CabinetInvitation) bool { return i.Token == token })
}

func (f *fakeCabinets) GetInvitation(_ context.Context, ownerID, id string) (*model.CabinetInvitation, error) {
	return f.findInvitation(func(i *model.CabinetInvitation) bool { return i.OwnerID == ownerID && i.ID == id })
}

func (f *fakeCabinets) findInvitation(match func(*model.CabinetInvitation) bool) (*model.CabinetInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if match(inv) {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, repository.ErrInvitationNotFound
}

func (f *fakeCabinets) ListInvitations(_ context.Context, ownerID string) ([]*model.CabinetInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.CabinetInvitation
	for _, inv := range f.invitations {
		if inv.OwnerID == ownerID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeCabinets) SetInvitationStatus(_ context.Context, id string, status model.InvitationStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.ID == id {
			if inv.Status != model.InvitationPending {
				return repository.ErrInvitationNotPending
			}
			inv.Status = status
			inv.RespondedAt = &at
			return nil
		}
	}
	return repository.ErrInvitationNotFound
}

func (f *fakeCabinets) AcceptInvitation(ctx context.Context, inv *model.CabinetInvitation, member *model.CabinetMember) error {
	if err := f.SetInvitationStatus(ctx, inv.ID, model.InvitationAccepted, member.CreatedAt); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.OwnerID == inv.OwnerID && m.MemberID == member.MemberID {
			m.Permissions = inv.Permissions
			*member = *m
			return nil
		}
	}
	member.OwnerID = inv.OwnerID
	f.members = append(f.members, member)
	return nil
}

func (f *fakeCabinets) ExpireInvitations(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, inv := range f.invitations {
		if inv.Status == model.InvitationPending && inv.IsExpired(now) {
			inv.Status = model.InvitationExpired
			n++
		}
	}
	return n, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Invitation
	err  error
}

func (f *fakeMailer) SendInvitation(_ context.Context, inv mailer.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, inv)
	return nil
}

// allowAll grants every permission.
type allowAll struct{}

func (allowAll) Authorize(context.Context, string, string, model.Permissions) error { return nil }

// denyAll refuses every permission.
type denyAll struct{}

func (denyAll) Authorize(context.Context, string, string, model.Permissions) error {
	return ErrForbidden
}
