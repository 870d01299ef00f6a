package grpc

import (
	"context"

	"github.com/minmer/recreatio-sub002/internal/api"
	"google.golang.org/grpc"
)

// Vault is the server side of recreatio.v1.Vault.
type Vault interface {
	Register(context.Context, *api.RegisterRequest) (*api.RegisterResponse, error)
	GetSalt(context.Context, *api.GetSaltRequest) (*api.GetSaltResponse, error)
	CheckAvailability(context.Context, *api.CheckAvailabilityRequest) (*api.CheckAvailabilityResponse, error)
	Login(context.Context, *api.LoginRequest) (*api.LoginResponse, error)
	Logout(context.Context, *api.Empty) (*api.Empty, error)
	ChangePassword(context.Context, *api.ChangePasswordRequest) (*api.Empty, error)
	SetSecureMode(context.Context, *api.SetSecureModeRequest) (*api.Empty, error)
	VerifyLedger(context.Context, *api.VerifyLedgerRequest) (*api.LedgerSummary, error)
	ExportLedger(context.Context, *api.ExportLedgerRequest) (*api.ExportLedgerResponse, error)
	SearchRoles(context.Context, *api.SearchRolesRequest) (*api.SearchRolesResponse, error)
	ListRoles(context.Context, *api.Empty) (*api.ListRolesResponse, error)
	GetGraph(context.Context, *api.Empty) (*api.GraphResponse, error)
	CreateRole(context.Context, *api.CreateRoleRequest) (*api.CreateRoleResponse, error)
	CreateDataItem(context.Context, *api.CreateDataItemRequest) (*api.CreateDataItemResponse, error)
	UpdateDataItem(context.Context, *api.UpdateDataItemRequest) (*api.Empty, error)
	DeleteDataItem(context.Context, *api.DeleteDataItemRequest) (*api.Empty, error)
	CreateRoleEdge(context.Context, *api.RoleEdgeRequest) (*api.Empty, error)
	DeleteRoleParent(context.Context, *api.RoleEdgeRequest) (*api.Empty, error)
	ShareRole(context.Context, *api.ShareRoleRequest) (*api.ShareResponse, error)
	ShareDataItem(context.Context, *api.ShareDataItemRequest) (*api.ShareResponse, error)
	ListPendingShares(context.Context, *api.Empty) (*api.ListPendingSharesResponse, error)
	AcceptRoleShare(context.Context, *api.AcceptShareRequest) (*api.Empty, error)
	AcceptDataShare(context.Context, *api.AcceptShareRequest) (*api.Empty, error)
	PrepareRecoveryKey(context.Context, *api.PrepareRecoveryKeyRequest) (*api.PrepareRecoveryKeyResponse, error)
	ActivateRecoveryKey(context.Context, *api.ActivateRecoveryKeyRequest) (*api.Empty, error)
	RevokeRecoveryShares(context.Context, *api.RevokeRecoverySharesRequest) (*api.RevokeRecoverySharesResponse, error)
}

var _ Vault = (*GRPCServer)(nil)

// unary adapts a typed Vault method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(Vault, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			v := srv.(Vault)
			if interceptor == nil {
				return call(v, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(v, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*Vault)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodRegister, Vault.Register),
		unary(api.MethodGetSalt, Vault.GetSalt),
		unary(api.MethodCheckAvailability, Vault.CheckAvailability),
		unary(api.MethodLogin, Vault.Login),
		unary(api.MethodLogout, Vault.Logout),
		unary(api.MethodChangePassword, Vault.ChangePassword),
		unary(api.MethodSetSecureMode, Vault.SetSecureMode),
		unary(api.MethodVerifyLedger, Vault.VerifyLedger),
		unary(api.MethodExportLedger, Vault.ExportLedger),
		unary(api.MethodSearchRoles, Vault.SearchRoles),
		unary(api.MethodListRoles, Vault.ListRoles),
		unary(api.MethodGetGraph, Vault.GetGraph),
		unary(api.MethodCreateRole, Vault.CreateRole),
		unary(api.MethodCreateDataItem, Vault.CreateDataItem),
		unary(api.MethodUpdateDataItem, Vault.UpdateDataItem),
		unary(api.MethodDeleteDataItem, Vault.DeleteDataItem),
		unary(api.MethodCreateRoleEdge, Vault.CreateRoleEdge),
		unary(api.MethodDeleteRoleParent, Vault.DeleteRoleParent),
		unary(api.MethodShareRole, Vault.ShareRole),
		unary(api.MethodShareDataItem, Vault.ShareDataItem),
		unary(api.MethodListPendingShares, Vault.ListPendingShares),
		unary(api.MethodAcceptRoleShare, Vault.AcceptRoleShare),
		unary(api.MethodAcceptDataShare, Vault.AcceptDataShare),
		unary(api.MethodPrepareRecoveryKey, Vault.PrepareRecoveryKey),
		unary(api.MethodActivateRecoveryKey, Vault.ActivateRecoveryKey),
		unary(api.MethodRevokeRecoveryShares, Vault.RevokeRecoveryShares),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recreatio/v1/vault",
}
