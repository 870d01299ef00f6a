package grpc

import (
	"context"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/services"
)

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	s.logger.Info(ctx, "Registration request")

	id, err := s.svc.Accounts.Register(ctx, services.RegisterRequest{
		LoginID:     req.LoginID,
		UserSalt:    req.UserSalt,
		H3:          req.H3,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "account_id", id)
	return &api.RegisterResponse{AccountID: id}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *api.GetSaltRequest) (*api.GetSaltResponse, error) {
	salt, err := s.svc.Accounts.GetSalt(ctx, req.LoginID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.GetSaltResponse{Salt: salt}, nil
}

func (s *GRPCServer) CheckAvailability(ctx context.Context, req *api.CheckAvailabilityRequest) (*api.CheckAvailabilityResponse, error) {
	return &api.CheckAvailabilityResponse{Available: s.svc.Accounts.CheckAvailability(ctx, req.LoginID)}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	res, err := s.svc.Accounts.Login(ctx, services.LoginRequest{
		LoginID:    req.LoginID,
		H3:         req.H3,
		SecureMode: req.SecureMode,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.LoginResponse{
		AccountID:   res.AccountID,
		SessionID:   res.SessionID,
		SecureMode:  res.SecureMode,
		AccessToken: res.AccessToken,
	}, nil
}

func (s *GRPCServer) Logout(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Accounts.Logout(ctx, c))
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Accounts.ChangePassword(ctx, c, req.OldH3, req.NewH3))
}

func (s *GRPCServer) SetSecureMode(ctx context.Context, req *api.SetSecureModeRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Accounts.SetSecureMode(ctx, c, req.Enabled))
}

func summaryToAPI(sum *ledger.Summary) *api.LedgerSummary {
	return &api.LedgerSummary{
		Chain:                  string(sum.Chain),
		RoleID:                 sum.RoleID,
		Total:                  sum.Total,
		Unsigned:               sum.Unsigned,
		HashMismatches:         sum.HashMismatches,
		PreviousHashMismatches: sum.PreviousHashMismatches,
		SignaturesVerified:     sum.SignaturesVerified,
		SignaturesMissing:      sum.SignaturesMissing,
		SignaturesInvalid:      sum.SignaturesInvalid,
		RoleSignedEntries:      sum.RoleSignedEntries,
		RoleInvalidSignatures:  sum.RoleInvalidSignatures,
	}
}

func (s *GRPCServer) VerifyLedger(ctx context.Context, req *api.VerifyLedgerRequest) (*api.LedgerSummary, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := s.svc.Ledger.Verify(ctx, c, req.Chain, req.RoleID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return summaryToAPI(sum), nil
}

func (s *GRPCServer) ExportLedger(ctx context.Context, req *api.ExportLedgerRequest) (*api.ExportLedgerResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	exp, err := s.svc.Ledger.Export(ctx, c, req.Chain)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.ExportLedgerResponse{Key: exp.Key, Entries: exp.Entries, DownloadURL: exp.DownloadURL}, nil
}

func (s *GRPCServer) SearchRoles(ctx context.Context, req *api.SearchRolesRequest) (*api.SearchRolesResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	hits, err := s.svc.Queries.Search(ctx, c, req.Query)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := &api.SearchRolesResponse{Roles: make([]api.RoleSummary, 0, len(hits))}
	for _, h := range hits {
		out.Roles = append(out.Roles, api.RoleSummary(h))
	}
	return out, nil
}

func (s *GRPCServer) ListRoles(ctx context.Context, _ *api.Empty) (*api.ListRolesResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.svc.Queries.List(ctx, c)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := &api.ListRolesResponse{Roles: make([]api.RoleView, 0, len(views))}
	for _, v := range views {
		out.Roles = append(out.Roles, api.RoleView{
			RoleID:       v.RoleID,
			RoleKind:     v.RoleKind,
			Label:        v.Label,
			Relationship: string(v.Relationship),
			CanWrite:     v.CanWrite,
			Fields:       v.Fields,
		})
	}
	return out, nil
}

func (s *GRPCServer) GetGraph(ctx context.Context, _ *api.Empty) (*api.GraphResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.svc.Queries.Graph(ctx, c)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := &api.GraphResponse{
		Nodes: make([]api.GraphNode, 0, len(g.Nodes)),
		Edges: make([]api.GraphEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		out.Nodes = append(out.Nodes, api.GraphNode(n))
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, api.GraphEdge(e))
	}
	return out, nil
}

func (s *GRPCServer) CreateRole(ctx context.Context, req *api.CreateRoleRequest) (*api.CreateRoleResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	fields := make([]services.FieldInput, 0, len(req.Fields))
	for _, f := range req.Fields {
		fields = append(fields, services.FieldInput{Type: f.Type, Value: f.Value})
	}
	id, err := s.svc.Commands.CreateRole(ctx, c, services.CreateRoleRequest{
		ParentRoleID: req.ParentRoleID,
		Relationship: models.RelationshipType(req.Relationship),
		RoleKind:     req.RoleKind,
		Fields:       fields,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.CreateRoleResponse{RoleID: id}, nil
}

func (s *GRPCServer) CreateDataItem(ctx context.Context, req *api.CreateDataItemRequest) (*api.CreateDataItemResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Commands.CreateDataItem(ctx, c, req.RoleID, services.FieldInput{Type: req.Type, Value: req.Value})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.CreateDataItemResponse{FieldID: id}, nil
}

func (s *GRPCServer) UpdateDataItem(ctx context.Context, req *api.UpdateDataItemRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Commands.UpdateDataItem(ctx, c, req.FieldID, req.Value))
}

func (s *GRPCServer) DeleteDataItem(ctx context.Context, req *api.DeleteDataItemRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Commands.DeleteDataItem(ctx, c, req.FieldID))
}

func (s *GRPCServer) CreateRoleEdge(ctx context.Context, req *api.RoleEdgeRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	rel := models.RelationshipType(req.Relationship)
	if rel == "" {
		rel = models.RelationshipOwner
	}
	return s.empty(ctx, s.svc.Commands.CreateRoleEdge(ctx, c, req.ParentRoleID, req.ChildRoleID, rel))
}

func (s *GRPCServer) DeleteRoleParent(ctx context.Context, req *api.RoleEdgeRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Commands.DeleteRoleParent(ctx, c, req.ParentRoleID, req.ChildRoleID))
}

func (s *GRPCServer) ShareRole(ctx context.Context, req *api.ShareRoleRequest) (*api.ShareResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Commands.ShareRole(ctx, c, req.SourceRoleID, req.TargetRoleID, models.RelationshipType(req.Relationship))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.ShareResponse{ShareID: id}, nil
}

func (s *GRPCServer) ShareDataItem(ctx context.Context, req *api.ShareDataItemRequest) (*api.ShareResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Commands.ShareDataItem(ctx, c, req.FieldID, req.TargetRoleID, models.PermissionType(req.Permission))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.ShareResponse{ShareID: id}, nil
}

func (s *GRPCServer) ListPendingShares(ctx context.Context, _ *api.Empty) (*api.ListPendingSharesResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.svc.Commands.ListPendingShares(ctx, c)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := &api.ListPendingSharesResponse{
		Roles: make([]api.PendingRoleShare, 0, len(pending.Roles)),
		Data:  make([]api.PendingDataShare, 0, len(pending.Data)),
	}
	for _, r := range pending.Roles {
		out.Roles = append(out.Roles, api.PendingRoleShare{
			ID:           r.ID,
			SourceRoleID: r.SourceRoleID,
			TargetRoleID: r.TargetRoleID,
			Relationship: string(r.RelationshipType),
			CreatedUTC:   r.CreatedUTC,
		})
	}
	for _, d := range pending.Data {
		out.Data = append(out.Data, api.PendingDataShare{
			ID:           d.ID,
			FieldID:      d.FieldID,
			TargetRoleID: d.TargetRoleID,
			Permission:   string(d.PermissionType),
			CreatedUTC:   d.CreatedUTC,
		})
	}
	return out, nil
}

func (s *GRPCServer) AcceptRoleShare(ctx context.Context, req *api.AcceptShareRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Commands.AcceptRoleShare(ctx, c, req.ShareID))
}

func (s *GRPCServer) AcceptDataShare(ctx context.Context, req *api.AcceptShareRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Commands.AcceptDataShare(ctx, c, req.ShareID))
}

func (s *GRPCServer) PrepareRecoveryKey(ctx context.Context, req *api.PrepareRecoveryKeyRequest) (*api.PrepareRecoveryKeyResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Recovery.PrepareRecoveryKey(ctx, c, req.TargetRoleID, req.TrusteeRoleIDs)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.PrepareRecoveryKeyResponse{PlanID: id}, nil
}

func (s *GRPCServer) ActivateRecoveryKey(ctx context.Context, req *api.ActivateRecoveryKeyRequest) (*api.Empty, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.empty(ctx, s.svc.Recovery.ActivateRecoveryKey(ctx, c, req.PlanID))
}

func (s *GRPCServer) RevokeRecoveryShares(ctx context.Context, req *api.RevokeRecoverySharesRequest) (*api.RevokeRecoverySharesResponse, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.svc.Recovery.RevokeRecoveryShares(ctx, c, req.TargetRoleID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.RevokeRecoverySharesResponse{Revoked: n}, nil
}

func (s *GRPCServer) empty(ctx context.Context, err error) (*api.Empty, error) {
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.Empty{}, nil
}
