package memory

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func in(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

type roleRepo struct{ h handle }

func (r *roleRepo) Create(_ context.Context, role *models.Role) error {
	return r.h.write(func(s *state) error {
		s.roles[role.ID] = row[models.Role]{n: s.next(), v: *role}
		return nil
	})
}

func (r *roleRepo) GetByID(_ context.Context, id string) (*models.Role, error) {
	var out *models.Role
	err := r.h.read(func(s *state) error {
		role, ok := s.roles[id]
		if !ok {
			return common.ErrorNotFound
		}
		v := role.v
		out = &v
		return nil
	})
	return out, err
}

func (r *roleRepo) GetByIDs(_ context.Context, ids []string) ([]*models.Role, error) {
	set := idSet(ids)
	var out []*models.Role
	err := r.h.read(func(s *state) error {
		out = s.roles.filter(func(v models.Role) bool { return in(set, v.ID) })
		return nil
	})
	return out, err
}

func (r *roleRepo) UpdateBlob(_ context.Context, id string, blob []byte, now time.Time) error {
	return r.h.write(func(s *state) error {
		role, ok := s.roles[id]
		if !ok {
			return common.ErrorNotFound
		}
		role.v.EncryptedBlob = append([]byte(nil), blob...)
		role.v.UpdatedUTC = now
		s.roles[id] = role
		return nil
	})
}

type fieldRepo struct{ h handle }

func (r *fieldRepo) Create(_ context.Context, f *models.RoleField) error {
	return r.h.write(func(s *state) error {
		s.fields[f.ID] = row[models.RoleField]{n: s.next(), v: *f}
		return nil
	})
}

func (r *fieldRepo) GetByID(_ context.Context, id string) (*models.RoleField, error) {
	var out *models.RoleField
	err := r.h.read(func(s *state) error {
		f, ok := s.fields[id]
		if !ok {
			return common.ErrorNotFound
		}
		v := f.v
		out = &v
		return nil
	})
	return out, err
}

func (r *fieldRepo) GetByIDs(_ context.Context, ids []string) ([]*models.RoleField, error) {
	set := idSet(ids)
	var out []*models.RoleField
	err := r.h.read(func(s *state) error {
		out = s.fields.filter(func(v models.RoleField) bool { return in(set, v.ID) })
		return nil
	})
	return out, err
}

func (r *fieldRepo) ListByRoles(_ context.Context, roleIDs []string) ([]*models.RoleField, error) {
	set := idSet(roleIDs)
	var out []*models.RoleField
	err := r.h.read(func(s *state) error {
		out = s.fields.filter(func(v models.RoleField) bool { return in(set, v.RoleID) })
		return nil
	})
	return out, err
}

func (r *fieldRepo) UpdateValue(_ context.Context, id string, encryptedValue []byte, now time.Time) error {
	return r.h.write(func(s *state) error {
		f, ok := s.fields[id]
		if !ok {
			return common.ErrorNotFound
		}
		f.v.EncryptedValue = append([]byte(nil), encryptedValue...)
		f.v.UpdatedUTC = now
		s.fields[id] = f
		return nil
	})
}

func (r *fieldRepo) Delete(_ context.Context, id string) error {
	return r.h.write(func(s *state) error {
		if _, ok := s.fields[id]; !ok {
			return common.ErrorNotFound
		}
		delete(s.fields, id)
		return nil
	})
}

type keyRepo struct{ h handle }

func (r *keyRepo) Create(_ context.Context, e *models.KeyEntry) error {
	return r.h.write(func(s *state) error {
		s.keys[e.ID] = row[models.KeyEntry]{n: s.next(), v: *e}
		return nil
	})
}

func (r *keyRepo) GetByIDs(_ context.Context, ids []string) ([]*models.KeyEntry, error) {
	set := idSet(ids)
	var out []*models.KeyEntry
	err := r.h.read(func(s *state) error {
		out = s.keys.filter(func(v models.KeyEntry) bool { return in(set, v.ID) })
		return nil
	})
	return out, err
}

func (r *keyRepo) DeleteByIDs(_ context.Context, ids []string) error {
	return r.h.write(func(s *state) error {
		for _, id := range ids {
			delete(s.keys, id)
		}
		return nil
	})
}

type edgeRepo struct{ h handle }

func (r *edgeRepo) Upsert(_ context.Context, e *models.RoleEdge) error {
	return r.h.write(func(s *state) error {
		k := edgeKey{parent: e.ParentRoleID, child: e.ChildRoleID}
		if existing, ok := s.edges[k]; ok {
			existing.v.RelationshipType = e.RelationshipType
			existing.v.EncryptedReadKey = e.EncryptedReadKey
			existing.v.EncryptedWriteKey = e.EncryptedWriteKey
			s.edges[k] = existing
			return nil
		}
		s.edges[k] = row[models.RoleEdge]{n: s.next(), v: *e}
		return nil
	})
}

func (r *edgeRepo) ListByParents(_ context.Context, parentIDs []string) ([]*models.RoleEdge, error) {
	set := idSet(parentIDs)
	var out []*models.RoleEdge
	err := r.h.read(func(s *state) error {
		out = s.edges.filter(func(v models.RoleEdge) bool { return in(set, v.ParentRoleID) })
		return nil
	})
	return out, err
}

func (r *edgeRepo) Delete(_ context.Context, parentID, childID string) error {
	return r.h.write(func(s *state) error {
		k := edgeKey{parent: parentID, child: childID}
		if _, ok := s.edges[k]; !ok {
			return common.ErrorNotFound
		}
		delete(s.edges, k)
		return nil
	})
}

type membershipRepo struct{ h handle }

func (r *membershipRepo) Create(_ context.Context, m *models.Membership) error {
	return r.h.write(func(s *state) error {
		k := membershipKey{account: m.AccountID, role: m.RoleID}
		if _, ok := s.memberships[k]; ok {
			return common.ErrInvalidInput
		}
		s.memberships[k] = row[models.Membership]{n: s.next(), v: *m}
		return nil
	})
}

func (r *membershipRepo) ListByAccount(_ context.Context, accountID string) ([]*models.Membership, error) {
	var out []*models.Membership
	err := r.h.read(func(s *state) error {
		out = s.memberships.filter(func(v models.Membership) bool { return v.AccountID == accountID })
		return nil
	})
	return out, err
}
