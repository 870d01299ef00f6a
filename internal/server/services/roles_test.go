package services

import (
	"context"
	"testing"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// family builds alice's Family role (held directly) with a Kids role below it.
func family(t *testing.T, h *harness, alice *Caller) (familyID, kidsID, noteID string) {
	t.Helper()
	ctx := context.Background()
	familyID, err := h.commands.CreateRole(ctx, alice, CreateRoleRequest{
		Fields: []FieldInput{{Type: "Nick", Value: "Family"}, {Type: "note", Value: "spare key under the mat"}},
	})
	require.NoError(t, err)
	kidsID, err = h.commands.CreateRole(ctx, alice, CreateRoleRequest{
		ParentRoleID: familyID,
		Fields:       []FieldInput{{Type: "nick", Value: "Kids"}},
	})
	require.NoError(t, err)

	fields, err := h.st.Repos.Fields(h.store).ListByRoles(ctx, []string{familyID})
	require.NoError(t, err)
	for _, f := range fields {
		if f.FieldType == "note" {
			noteID = f.ID
		}
	}
	require.NotEmpty(t, noteID)
	return familyID, kidsID, noteID
}

func graphNode(g *Graph, id string) (GraphNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}

func hasEdge(g *Graph, from, to, typ string) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to && e.Type == typ {
			return true
		}
	}
	return false
}

func TestCreateRole_ListAndGraph(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	familyID, kidsID, noteID := family(t, h, alice)

	views, err := h.queries.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, views, 3)

	fam, ok := h.roleView(t, alice, familyID)
	require.True(t, ok)
	assert.Equal(t, "Family", fam.Label)
	assert.Equal(t, models.RoleTypeDefault, fam.RoleKind)
	assert.Equal(t, models.RelationshipOwner, fam.Relationship)
	assert.True(t, fam.CanWrite)
	assert.Equal(t, "spare key under the mat", fam.Fields["note"])

	g, err := h.queries.Graph(ctx, alice)
	require.NoError(t, err)
	accountNode := "account:" + alice.AccountID
	assert.True(t, hasEdge(g, accountNode, alice.MasterRoleID, string(models.RelationshipOwner)))
	assert.True(t, hasEdge(g, accountNode, familyID, string(models.RelationshipOwner)))
	assert.True(t, hasEdge(g, familyID, kidsID, string(models.RelationshipOwner)))

	note, ok := graphNode(g, "data:"+noteID)
	require.True(t, ok)
	assert.Equal(t, "spare key under the mat", note.Value)
	assert.True(t, hasEdge(g, familyID, note.ID, "Data"))

	kids, ok := graphNode(g, kidsID)
	require.True(t, ok)
	assert.Equal(t, "Kids", kids.Label)
	assert.True(t, kids.CanLink)
	assert.True(t, kids.CanWrite)

	key := h.chain(t, models.ChainKey)
	assert.Equal(t, 2, countEvents(key, ledger.EventRoleCreated))
	assert.Equal(t, 1, countEvents(key, ledger.EventRoleEdgeCreated))
}

func TestCreateRole_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")

	_, err := h.commands.CreateRole(ctx, alice, CreateRoleRequest{RoleKind: models.RoleTypeMaster})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = h.commands.CreateRole(ctx, alice, CreateRoleRequest{Relationship: "Admin"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = h.commands.CreateRole(ctx, alice, CreateRoleRequest{Fields: []FieldInput{{Type: "a", Value: "1"}, {Type: " A ", Value: "2"}}})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = h.commands.CreateRole(ctx, bob, CreateRoleRequest{ParentRoleID: alice.MasterRoleID})
	assert.ErrorIs(t, err, common.ErrForbidden)

	views, err := h.queries.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestFieldsAreOpaqueToOtherAccounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, _, noteID := family(t, h, alice)

	hits, err := h.queries.Search(ctx, bob, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, bob.MasterRoleID, hits[0].RoleID)

	g, err := h.queries.Graph(ctx, bob)
	require.NoError(t, err)
	_, ok := graphNode(g, familyID)
	assert.False(t, ok)
	_, ok = graphNode(g, "data:"+noteID)
	assert.False(t, ok)

	assert.ErrorIs(t, h.commands.UpdateDataItem(ctx, bob, noteID, "mine now"), common.ErrForbidden)
	assert.ErrorIs(t, h.commands.DeleteDataItem(ctx, bob, noteID), common.ErrForbidden)
	_, err = h.commands.CreateDataItem(ctx, bob, familyID, FieldInput{Type: "x", Value: "y"})
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestDataItemLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	familyID, _, noteID := family(t, h, alice)

	_, err := h.commands.CreateDataItem(ctx, alice, familyID, FieldInput{Type: "NOTE", Value: "dup"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	phoneID, err := h.commands.CreateDataItem(ctx, alice, familyID, FieldInput{Type: "phone", Value: "555-0100"})
	require.NoError(t, err)
	require.NoError(t, h.commands.UpdateDataItem(ctx, alice, noteID, "key moved"))

	fam, _ := h.roleView(t, alice, familyID)
	assert.Equal(t, "key moved", fam.Fields["note"])
	assert.Equal(t, "555-0100", fam.Fields["phone"])

	require.NoError(t, h.commands.DeleteDataItem(ctx, alice, phoneID))
	fam, _ = h.roleView(t, alice, familyID)
	assert.NotContains(t, fam.Fields, "phone")
	assert.ErrorIs(t, h.commands.DeleteDataItem(ctx, alice, phoneID), common.ErrorNotFound)

	business := h.chain(t, models.ChainBusiness)
	assert.Equal(t, 1, countEvents(business, ledger.EventDataItemCreated))
	assert.Equal(t, 1, countEvents(business, ledger.EventDataItemUpdated))
	assert.Equal(t, 1, countEvents(business, ledger.EventDataItemDeleted))
	for _, e := range business {
		assert.Equal(t, familyID, e.SignerRoleID)
	}
}

func TestShareRole_AcceptGrantsCapability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, kidsID, _ := family(t, h, alice)

	_, err := h.commands.ShareRole(ctx, bob, familyID, bob.MasterRoleID, models.RelationshipRead)
	assert.ErrorIs(t, err, common.ErrForbidden)

	shareID, err := h.commands.ShareRole(ctx, alice, familyID, bob.MasterRoleID, models.RelationshipRead)
	require.NoError(t, err)

	_, visible := h.roleView(t, bob, familyID)
	assert.False(t, visible, "a pending share confers nothing")

	pending, err := h.commands.ListPendingShares(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending.Roles, 1)
	assert.Equal(t, shareID, pending.Roles[0].ID)
	assert.Empty(t, pending.Data)

	assert.ErrorIs(t, h.commands.AcceptRoleShare(ctx, alice, shareID), common.ErrForbidden)
	require.NoError(t, h.commands.AcceptRoleShare(ctx, bob, shareID))
	assert.ErrorIs(t, h.commands.AcceptRoleShare(ctx, bob, shareID), common.ErrShareNotPending)

	fam, ok := h.roleView(t, bob, familyID)
	require.True(t, ok)
	assert.Equal(t, models.RelationshipRead, fam.Relationship)
	assert.False(t, fam.CanWrite)
	assert.Equal(t, "spare key under the mat", fam.Fields["note"])

	kids, ok := h.roleView(t, bob, kidsID)
	require.True(t, ok, "read access flows down owner edges")
	assert.Equal(t, models.RelationshipRead, kids.Relationship)

	_, err = h.commands.CreateDataItem(ctx, bob, familyID, FieldInput{Type: "x", Value: "y"})
	assert.ErrorIs(t, err, common.ErrForbidden)

	pending, err = h.commands.ListPendingShares(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, pending.Roles)
}

func TestShareRole_WriteAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, _, noteID := family(t, h, alice)

	shareID, err := h.commands.ShareRole(ctx, alice, familyID, bob.MasterRoleID, models.RelationshipWrite)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptRoleShare(ctx, bob, shareID))

	fam, ok := h.roleView(t, bob, familyID)
	require.True(t, ok)
	assert.True(t, fam.CanWrite)
	require.NoError(t, h.commands.UpdateDataItem(ctx, bob, noteID, "bob was here"))

	fam, _ = h.roleView(t, alice, familyID)
	assert.Equal(t, "bob was here", fam.Fields["note"])

	g, err := h.queries.Graph(ctx, bob)
	require.NoError(t, err)
	node, ok := graphNode(g, familyID)
	require.True(t, ok)
	assert.False(t, node.CanLink, "write access is not ownership")
}

func TestAcceptRoleShare_KeepsStrongerEdge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, _, _ := family(t, h, alice)

	writeShare, err := h.commands.ShareRole(ctx, alice, familyID, bob.MasterRoleID, models.RelationshipWrite)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptRoleShare(ctx, bob, writeShare))

	readShare, err := h.commands.ShareRole(ctx, alice, familyID, bob.MasterRoleID, models.RelationshipRead)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptRoleShare(ctx, bob, readShare))
	assert.ErrorIs(t, h.commands.AcceptRoleShare(ctx, bob, readShare), common.ErrShareNotPending)

	fam, ok := h.roleView(t, bob, familyID)
	require.True(t, ok)
	assert.Equal(t, models.RelationshipWrite, fam.Relationship)
	assert.True(t, fam.CanWrite)

	// A stronger share still upgrades a weaker edge.
	carol := h.caller(t, "carol", "Carol")
	readShare, err = h.commands.ShareRole(ctx, alice, familyID, carol.MasterRoleID, models.RelationshipRead)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptRoleShare(ctx, carol, readShare))
	writeShare, err = h.commands.ShareRole(ctx, alice, familyID, carol.MasterRoleID, models.RelationshipWrite)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptRoleShare(ctx, carol, writeShare))

	fam, ok = h.roleView(t, carol, familyID)
	require.True(t, ok)
	assert.Equal(t, models.RelationshipWrite, fam.Relationship)
	assert.True(t, fam.CanWrite)

	assert.Equal(t, 4, countEvents(h.chain(t, models.ChainKey), ledger.EventRoleShareAccepted))
}

func TestShareDataItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, _, noteID := family(t, h, alice)

	_, err := h.commands.ShareDataItem(ctx, alice, noteID, bob.MasterRoleID, "Admin")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	readShare, err := h.commands.ShareDataItem(ctx, alice, noteID, bob.MasterRoleID, models.PermissionRead)
	require.NoError(t, err)
	pending, err := h.commands.ListPendingShares(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending.Data, 1)
	require.NoError(t, h.commands.AcceptDataShare(ctx, bob, readShare))
	assert.ErrorIs(t, h.commands.AcceptDataShare(ctx, bob, readShare), common.ErrShareNotPending)

	g, err := h.queries.Graph(ctx, bob)
	require.NoError(t, err)
	node, ok := graphNode(g, "data:"+noteID)
	require.True(t, ok)
	assert.Equal(t, "spare key under the mat", node.Value)
	assert.Equal(t, bob.MasterRoleID, node.RoleID)
	assert.True(t, hasEdge(g, bob.MasterRoleID, node.ID, "SharedData:Read"))
	_, ok = graphNode(g, familyID)
	assert.False(t, ok, "a data share does not expose its role")

	assert.ErrorIs(t, h.commands.UpdateDataItem(ctx, bob, noteID, "nope"), common.ErrForbidden)

	writeShare, err := h.commands.ShareDataItem(ctx, alice, noteID, bob.MasterRoleID, models.PermissionWrite)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptDataShare(ctx, bob, writeShare))
	require.NoError(t, h.commands.UpdateDataItem(ctx, bob, noteID, "edited by bob"))

	fam, _ := h.roleView(t, alice, familyID)
	assert.Equal(t, "edited by bob", fam.Fields["note"])

	require.NoError(t, h.commands.DeleteDataItem(ctx, alice, noteID))
	g, err = h.queries.Graph(ctx, bob)
	require.NoError(t, err)
	_, ok = graphNode(g, "data:"+noteID)
	assert.False(t, ok)
}

func TestRoleEdges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, kidsID, _ := family(t, h, alice)

	workID, err := h.commands.CreateRole(ctx, alice, CreateRoleRequest{Fields: []FieldInput{{Type: "nick", Value: "Work"}}})
	require.NoError(t, err)

	assert.ErrorIs(t, h.commands.CreateRoleEdge(ctx, alice, kidsID, kidsID, models.RelationshipRead), common.ErrInvalidInput)
	assert.ErrorIs(t, h.commands.CreateRoleEdge(ctx, alice, workID, kidsID, "Admin"), common.ErrInvalidInput)
	assert.ErrorIs(t, h.commands.CreateRoleEdge(ctx, bob, bob.MasterRoleID, kidsID, models.RelationshipRead), common.ErrForbidden)

	require.NoError(t, h.commands.CreateRoleEdge(ctx, alice, workID, kidsID, models.RelationshipRead))
	g, err := h.queries.Graph(ctx, alice)
	require.NoError(t, err)
	assert.True(t, hasEdge(g, workID, kidsID, string(models.RelationshipRead)))

	require.NoError(t, h.commands.DeleteRoleParent(ctx, alice, familyID, kidsID))
	assert.ErrorIs(t, h.commands.DeleteRoleParent(ctx, alice, familyID, kidsID), common.ErrorNotFound)

	kids, ok := h.roleView(t, alice, kidsID)
	require.True(t, ok, "still reachable through Work")
	assert.Equal(t, models.RelationshipRead, kids.Relationship)

	require.NoError(t, h.commands.DeleteRoleParent(ctx, alice, workID, kidsID))
	_, ok = h.roleView(t, alice, kidsID)
	assert.False(t, ok)
	key := h.chain(t, models.ChainKey)
	assert.Equal(t, 2, countEvents(key, ledger.EventRoleEdgeCreated))
	assert.Equal(t, 2, countEvents(key, ledger.EventRoleEdgeDeleted))
}
