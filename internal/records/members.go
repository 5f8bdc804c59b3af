package records

import (
	"context"
	"slices"
	"strings"

	"github.com/tildaslashalef/congregate/internal/entity"
)

// Members is the typed access to the member roster
type Members struct {
	svc *Service
}

// Members returns the member roster
func (s *Service) Members() *Members {
	return &Members{svc: s}
}

// Add validates and creates a member
func (m *Members) Add(ctx context.Context, in MemberInput) (*Member, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	record, err := m.svc.Create(ctx, entity.Members, in.Record())
	if err != nil {
		return nil, err
	}
	return toMember(record)
}

// Update applies a patch to a member
func (m *Members) Update(ctx context.Context, id string, patch MemberPatch) (*Member, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	record, err := m.svc.Update(ctx, entity.Members, id, patch.Fields())
	if err != nil {
		return nil, err
	}
	return toMember(record)
}

// Delete removes a member
func (m *Members) Delete(ctx context.Context, id string) error {
	return m.svc.Delete(ctx, entity.Members, id)
}

// Get returns one member
func (m *Members) Get(ctx context.Context, id string) (*Member, error) {
	record, err := m.svc.Get(ctx, entity.Members, id)
	if err != nil {
		return nil, err
	}
	return toMember(record)
}

// List returns the roster sorted by name
func (m *Members) List(ctx context.Context) ([]*Member, error) {
	records, err := m.svc.List(ctx, entity.Members)
	if err != nil {
		return nil, err
	}
	members, err := decodeAll[Member](records)
	if err != nil {
		return nil, err
	}
	for _, member := range members {
		fillBaptized(member)
	}
	slices.SortFunc(members, func(a, b *Member) int {
		return strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName))
	})
	return members, nil
}

// BySector returns the members of one sector, sorted by name
func (m *Members) BySector(ctx context.Context, sectorID int64) ([]*Member, error) {
	members, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(members, func(member *Member) bool {
		return member.SectorID == nil || *member.SectorID != sectorID
	}), nil
}

func toMember(record entity.Record) (*Member, error) {
	member, err := decode[Member](record)
	if err != nil {
		return nil, err
	}
	fillBaptized(member)
	return member, nil
}

// the server derives is_baptized; records written offline do not carry it yet
func fillBaptized(m *Member) {
	if m.BaptismDate != "" {
		m.IsBaptized = true
	}
}
