package services

import (
	"context"
	"sort"
	"strings"

	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

// RoleSummary is a search hit.
type RoleSummary struct {
	RoleID   string `json:"roleId"`
	RoleKind string `json:"roleKind"`
	Nick     string `json:"nick"`
}

// RoleView is a role in the caller's ring with its readable fields.
type RoleView struct {
	RoleID       string                  `json:"roleId"`
	RoleKind     string                  `json:"roleKind"`
	Label        string                  `json:"label"`
	Relationship models.RelationshipType `json:"relationship"`
	CanWrite     bool                    `json:"canWrite"`
	Fields       map[string]string       `json:"fields"`
}

const (
	NodeAccount        = "account"
	NodeRole           = "role"
	NodeData           = "data"
	NodeRecoveryPlan   = "recoveryPlan"
	NodeRecoveryShares = "recoveryShares"
)

type GraphNode struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	RoleID   string `json:"roleId,omitempty"`
	RoleKind string `json:"roleKind,omitempty"`
	Value    string `json:"value,omitempty"`
	CanLink  bool   `json:"canLink,omitempty"`
	CanWrite bool   `json:"canWrite,omitempty"`
}

type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// RoleQueryService answers read-only questions about the caller's part of the
// role graph. Nothing outside the caller's ring is ever returned.
type RoleQueryService struct {
	base
	fields *FieldQueryService
}

func NewRoleQueryService(st Storage, log logging.Logger) *RoleQueryService {
	return &RoleQueryService{base: newBase(st, log.With("service", "role_query")), fields: NewFieldQueryService(st.Repos)}
}

func roleLabel(kind, id string, fields map[string]string) string {
	if nick, ok := fields[models.FieldTypeNick]; ok && nick != "" {
		return nick
	}
	return kind + " " + shortID(id)
}

func (s *RoleQueryService) roleKinds(ctx context.Context, a *access) (map[string]string, error) {
	roles, err := s.st.Repos.Roles(s.st.DB).GetByIDs(ctx, a.ring.RoleIDs())
	if err != nil {
		return nil, err
	}
	kinds := make(map[string]string, len(roles))
	for _, r := range roles {
		kinds[r.ID] = r.RoleType
	}
	return kinds, nil
}

// Search returns ring roles whose readable nick contains query, ignoring case.
func (s *RoleQueryService) Search(ctx context.Context, c *Caller, query string) ([]RoleSummary, error) {
	a, err := s.loadAccess(ctx, s.st.DB, c)
	if err != nil {
		return nil, err
	}
	values, err := s.fields.Load(ctx, s.st.DB, a.ring, a.ring.RoleIDs())
	if err != nil {
		return nil, err
	}
	kinds, err := s.roleKinds(ctx, a)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var out []RoleSummary
	for _, id := range a.ring.RoleIDs() {
		nick, ok := values[id][models.FieldTypeNick]
		if !ok || !strings.Contains(strings.ToLower(nick), q) {
			continue
		}
		out = append(out, RoleSummary{RoleID: id, RoleKind: kinds[id], Nick: nick})
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Nick) < strings.ToLower(out[j].Nick) })
	return out, nil
}

// List returns every role in the caller's ring with its readable fields.
func (s *RoleQueryService) List(ctx context.Context, c *Caller) ([]RoleView, error) {
	a, err := s.loadAccess(ctx, s.st.DB, c)
	if err != nil {
		return nil, err
	}
	values, err := s.fields.Load(ctx, s.st.DB, a.ring, a.ring.RoleIDs())
	if err != nil {
		return nil, err
	}
	kinds, err := s.roleKinds(ctx, a)
	if err != nil {
		return nil, err
	}

	out := make([]RoleView, 0, a.ring.Len())
	for _, id := range a.ring.RoleIDs() {
		fields := values[id]
		if fields == nil {
			fields = map[string]string{}
		}
		_, canWrite := a.ring.WriteKey(id)
		out = append(out, RoleView{
			RoleID:       id,
			RoleKind:     kinds[id],
			Label:        roleLabel(kinds[id], id, fields),
			Relationship: a.ring.Relationship(id),
			CanWrite:     canWrite,
			Fields:       fields,
		})
	}
	return out, nil
}

// Graph builds the management view of the caller's ring: role nodes, data
// nodes for non-system fields, draft recovery plans of owned roles and live
// recovery share sets, joined by role edges and the account's memberships.
func (s *RoleQueryService) Graph(ctx context.Context, c *Caller) (*Graph, error) {
	db := s.st.DB
	a, err := s.loadAccess(ctx, db, c)
	if err != nil {
		return nil, err
	}
	closure, err := s.ownershipClosure(ctx, db, a)
	if err != nil {
		return nil, err
	}
	ids := a.ring.RoleIDs()
	inRing := make(map[string]bool, len(ids))
	for _, id := range ids {
		inRing[id] = true
	}

	resolved, err := s.fields.Resolve(ctx, db, a.ring, ids)
	if err != nil {
		return nil, err
	}
	kinds, err := s.roleKinds(ctx, a)
	if err != nil {
		return nil, err
	}
	nicks := map[string]map[string]string{}
	for _, r := range resolved {
		if r.Grant == nil && NormalizeFieldType(r.Field.FieldType) == models.FieldTypeNick {
			if _, ok := nicks[r.Field.RoleID]; !ok {
				nicks[r.Field.RoleID] = map[string]string{models.FieldTypeNick: r.Value}
			}
		}
	}

	g := &Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	accountNode := "account:" + c.AccountID
	g.Nodes = append(g.Nodes, GraphNode{ID: accountNode, Type: NodeAccount, Label: "account"})

	for _, id := range ids {
		_, canLink := closure[id]
		_, canWrite := a.ring.WriteKey(id)
		g.Nodes = append(g.Nodes, GraphNode{
			ID:       id,
			Type:     NodeRole,
			Label:    roleLabel(kinds[id], id, nicks[id]),
			RoleID:   id,
			RoleKind: kinds[id],
			CanLink:  canLink,
			CanWrite: canWrite,
		})
	}

	for _, r := range resolved {
		if NormalizeFieldType(r.Field.FieldType) == models.FieldTypeNick {
			continue
		}
		owner := r.Field.RoleID
		edgeType := "Data"
		if r.Grant != nil {
			owner, edgeType = r.Grant.RoleID, "SharedData:"+string(r.Grant.PermissionType)
		}
		nodeID := "data:" + r.Field.ID
		g.Nodes = append(g.Nodes, GraphNode{ID: nodeID, Type: NodeData, Label: r.Field.FieldType, RoleID: owner, Value: r.Value})
		g.Edges = append(g.Edges, GraphEdge{From: owner, To: nodeID, Type: edgeType})
	}

	for _, m := range a.memberships {
		if inRing[m.RoleID] {
			g.Edges = append(g.Edges, GraphEdge{From: accountNode, To: m.RoleID, Type: string(m.RelationshipType)})
		}
	}
	edges, err := s.st.Repos.Edges(db).ListByParents(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if inRing[e.ChildRoleID] {
			g.Edges = append(g.Edges, GraphEdge{From: e.ParentRoleID, To: e.ChildRoleID, Type: string(e.RelationshipType)})
		}
	}

	if err := s.addRecovery(ctx, g, closure, inRing); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *RoleQueryService) addRecovery(ctx context.Context, g *Graph, closure map[string]struct{}, inRing map[string]bool) error {
	owned := make([]string, 0, len(closure))
	for id := range closure {
		if inRing[id] {
			owned = append(owned, id)
		}
	}
	sort.Strings(owned)
	repo := s.st.Repos.Recovery(s.st.DB)

	plans, err := repo.ListPlansByTargets(ctx, owned)
	if err != nil {
		return err
	}
	var drafts []string
	for _, p := range plans {
		if p.ActivatedUTC == nil {
			drafts = append(drafts, p.ID)
		}
	}
	if len(drafts) > 0 {
		planShares, err := repo.ListPlanShares(ctx, drafts)
		if err != nil {
			return err
		}
		for _, p := range plans {
			if p.ActivatedUTC != nil {
				continue
			}
			nodeID := "recovery-plan:" + p.ID
			g.Nodes = append(g.Nodes, GraphNode{ID: nodeID, Type: NodeRecoveryPlan, Label: "recovery plan", RoleID: p.TargetRoleID})
			g.Edges = append(g.Edges, GraphEdge{From: p.TargetRoleID, To: nodeID, Type: "RecoveryPlan"})
			for _, sh := range planShares {
				if sh.PlanID == p.ID && inRing[sh.SharedWithRoleID] {
					g.Edges = append(g.Edges, GraphEdge{From: nodeID, To: sh.SharedWithRoleID, Type: "RecoveryTrustee"})
				}
			}
		}
	}

	ringIDs := make([]string, 0, len(inRing))
	for id := range inRing {
		ringIDs = append(ringIDs, id)
	}
	sort.Strings(ringIDs)
	live, err := repo.ListActiveShares(ctx, ringIDs)
	if err != nil {
		return err
	}
	added := map[string]bool{}
	for _, sh := range live {
		nodeID := "recovery:" + sh.TargetRoleID
		if !added[nodeID] {
			added[nodeID] = true
			g.Nodes = append(g.Nodes, GraphNode{ID: nodeID, Type: NodeRecoveryShares, Label: "recovery", RoleID: sh.TargetRoleID})
			g.Edges = append(g.Edges, GraphEdge{From: sh.TargetRoleID, To: nodeID, Type: "Recovery"})
		}
		if inRing[sh.SharedWithRoleID] {
			g.Edges = append(g.Edges, GraphEdge{From: nodeID, To: sh.SharedWithRoleID, Type: "RecoveryTrustee"})
		}
	}
	return nil
}
