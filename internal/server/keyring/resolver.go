package keyring

import (
	"context"
	"fmt"

	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

// EdgeLister loads the outgoing edges of a set of roles in one call.
type EdgeLister interface {
	ListByParents(ctx context.Context, parentIDs []string) ([]*models.RoleEdge, error)
}

type Resolver struct {
	edges EdgeLister
}

func NewResolver(edges EdgeLister) *Resolver {
	return &Resolver{edges: edges}
}

// Resolve walks the graph breadth first from roots. Each level is loaded with
// a single ListByParents call. A role is expanded again only when a later path
// gives it a stronger capability, so cycles and diamonds terminate.
//
// The capability on a child is the weaker of the parent's capability and the
// edge relationship; a write key is unwrapped only with the parent's write key.
// Edges whose key blobs fail to open are ignored.
func (r *Resolver) Resolve(ctx context.Context, roots []Root) (*Ring, error) {
	ring := NewRing()
	frontier := map[string]struct{}{}
	for _, root := range roots {
		if ring.grant(root.RoleID, root.Relationship, root.Keys.Read, root.Keys.Write) {
			frontier[root.RoleID] = struct{}{}
		}
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parents := make([]string, 0, len(frontier))
		for id := range frontier {
			parents = append(parents, id)
		}
		edges, err := r.edges.ListByParents(ctx, parents)
		if err != nil {
			return nil, fmt.Errorf("failed to load role edges: %w", err)
		}

		next := map[string]struct{}{}
		for _, e := range edges {
			keys, rel, ok := unwrapEdge(ring, e)
			if !ok {
				continue
			}
			if ring.grant(e.ChildRoleID, rel, keys.Read, keys.Write) {
				next[e.ChildRoleID] = struct{}{}
			}
		}
		frontier = next
	}
	return ring, nil
}

func unwrapEdge(ring *Ring, e *models.RoleEdge) (Keys, models.RelationshipType, bool) {
	parentRead, ok := ring.ReadKey(e.ParentRoleID)
	if !ok || !e.RelationshipType.Valid() {
		return Keys{}, "", false
	}
	read, err := cryptox.Decrypt(parentRead, e.EncryptedReadKey, EdgeAAD(e.ParentRoleID, e.ChildRoleID, "read"))
	if err != nil {
		return Keys{}, "", false
	}

	rel := weaker(ring.Relationship(e.ParentRoleID), e.RelationshipType)
	keys := Keys{Read: read}
	if rel.GrantsWrite() && len(e.EncryptedWriteKey) > 0 {
		parentWrite, _ := ring.WriteKey(e.ParentRoleID)
		write, err := cryptox.Decrypt(parentWrite, e.EncryptedWriteKey, EdgeAAD(e.ParentRoleID, e.ChildRoleID, "write"))
		if err == nil {
			keys.Write = write
		}
	}
	return keys, rel, true
}

// WrapEdge encrypts the child keys for an edge from parent. The write key is
// wrapped only when rel grants write.
func WrapEdge(parentID string, parent Keys, childID string, child Keys, rel models.RelationshipType) (read, write []byte, err error) {
	read, err = cryptox.Encrypt(parent.Read, child.Read, EdgeAAD(parentID, childID, "read"))
	if err != nil {
		return nil, nil, err
	}
	if !rel.GrantsWrite() {
		return read, nil, nil
	}
	if parent.Write == nil || child.Write == nil {
		return nil, nil, fmt.Errorf("%s edge needs both write keys", rel)
	}
	write, err = cryptox.Encrypt(parent.Write, child.Write, EdgeAAD(parentID, childID, "write"))
	if err != nil {
		return nil, nil, err
	}
	return read, write, nil
}

// OwnershipClosure returns every role reachable from roots over Owner edges,
// roots included.
func OwnershipClosure(ctx context.Context, edges EdgeLister, roots []string) (map[string]struct{}, error) {
	closure := map[string]struct{}{}
	frontier := make([]string, 0, len(roots))
	for _, id := range roots {
		if _, ok := closure[id]; !ok {
			closure[id] = struct{}{}
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, err := edges.ListByParents(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to load role edges: %w", err)
		}
		var next []string
		for _, e := range list {
			if e.RelationshipType != models.RelationshipOwner {
				continue
			}
			if _, seen := closure[e.ChildRoleID]; seen {
				continue
			}
			closure[e.ChildRoleID] = struct{}{}
			next = append(next, e.ChildRoleID)
		}
		frontier = next
	}
	return closure, nil
}
