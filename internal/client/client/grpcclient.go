package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCClient calls recreatio.v1.Vault. Once a session is set, every call
// carries the access token, and the H3 secret as well for secure sessions.
type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	accessToken string
	secret      []byte
}

func withSession(ctx context.Context, token string, secret []byte) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Delete(common.SecretHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if len(secret) > 0 {
		md.Set(common.SecretHeaderName, base64.StdEncoding.EncodeToString(secret))
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) sessionInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = withSession(ctx, s.accessToken, s.secret)
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewVaultClient connects to endpointURL. Extra dial options are appended
// after the defaults.
func NewVaultClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(api.Codec{})),
		grpc.WithUnaryInterceptor(c.sessionInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// SetSession installs the token, and the secret for secure sessions.
// A nil secret stops sending it.
func (s *GRPCClient) SetSession(accessToken string, secret []byte) {
	s.accessToken = accessToken
	s.secret = secret
}

func (s *GRPCClient) AccessToken() string { return s.accessToken }

func (s *GRPCClient) Close() error {
	common.WipeByteArray(s.secret)
	return s.conn.Close()
}

func invoke[Resp any](ctx context.Context, s *GRPCClient, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := s.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Register(ctx context.Context, loginID string, salt, h3 []byte, displayName string) (string, error) {
	resp, err := invoke[api.RegisterResponse](ctx, s, api.MethodRegister,
		&api.RegisterRequest{LoginID: loginID, UserSalt: salt, H3: h3, DisplayName: displayName})
	if err != nil {
		return "", err
	}
	return resp.AccountID, nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, loginID string) ([]byte, error) {
	resp, err := invoke[api.GetSaltResponse](ctx, s, api.MethodGetSalt, &api.GetSaltRequest{LoginID: loginID})
	if err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

func (s *GRPCClient) CheckAvailability(ctx context.Context, loginID string) (bool, error) {
	resp, err := invoke[api.CheckAvailabilityResponse](ctx, s, api.MethodCheckAvailability, &api.CheckAvailabilityRequest{LoginID: loginID})
	if err != nil {
		return false, err
	}
	return resp.Available, nil
}

// Login opens a session and installs its token. For secure sessions h3 is
// kept and sent with later calls.
func (s *GRPCClient) Login(ctx context.Context, loginID string, h3 []byte, secure bool, device string) (*api.LoginResponse, error) {
	resp, err := invoke[api.LoginResponse](ctx, s, api.MethodLogin,
		&api.LoginRequest{LoginID: loginID, H3: h3, SecureMode: secure, DeviceInfo: device})
	if err != nil {
		return nil, err
	}
	var secret []byte
	if resp.SecureMode {
		secret = append([]byte(nil), h3...)
	}
	s.SetSession(resp.AccessToken, secret)
	return resp, nil
}

func (s *GRPCClient) Logout(ctx context.Context) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodLogout, &api.Empty{})
	if err != nil {
		return err
	}
	s.SetSession("", nil)
	return nil
}

func (s *GRPCClient) ChangePassword(ctx context.Context, oldH3, newH3 []byte) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodChangePassword, &api.ChangePasswordRequest{OldH3: oldH3, NewH3: newH3})
	return err
}

func (s *GRPCClient) SetSecureMode(ctx context.Context, enabled bool) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodSetSecureMode, &api.SetSecureModeRequest{Enabled: enabled})
	return err
}

func (s *GRPCClient) VerifyLedger(ctx context.Context, chain, roleID string) (*api.LedgerSummary, error) {
	return invoke[api.LedgerSummary](ctx, s, api.MethodVerifyLedger, &api.VerifyLedgerRequest{Chain: chain, RoleID: roleID})
}

func (s *GRPCClient) ExportLedger(ctx context.Context, chain string) (*api.ExportLedgerResponse, error) {
	return invoke[api.ExportLedgerResponse](ctx, s, api.MethodExportLedger, &api.ExportLedgerRequest{Chain: chain})
}

func (s *GRPCClient) SearchRoles(ctx context.Context, query string) ([]api.RoleSummary, error) {
	resp, err := invoke[api.SearchRolesResponse](ctx, s, api.MethodSearchRoles, &api.SearchRolesRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (s *GRPCClient) ListRoles(ctx context.Context) ([]api.RoleView, error) {
	resp, err := invoke[api.ListRolesResponse](ctx, s, api.MethodListRoles, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (s *GRPCClient) Graph(ctx context.Context) (*api.GraphResponse, error) {
	return invoke[api.GraphResponse](ctx, s, api.MethodGetGraph, &api.Empty{})
}

func (s *GRPCClient) CreateRole(ctx context.Context, req *api.CreateRoleRequest) (string, error) {
	resp, err := invoke[api.CreateRoleResponse](ctx, s, api.MethodCreateRole, req)
	if err != nil {
		return "", err
	}
	return resp.RoleID, nil
}

func (s *GRPCClient) CreateDataItem(ctx context.Context, roleID, fieldType, value string) (string, error) {
	resp, err := invoke[api.CreateDataItemResponse](ctx, s, api.MethodCreateDataItem,
		&api.CreateDataItemRequest{RoleID: roleID, Field: api.Field{Type: fieldType, Value: value}})
	if err != nil {
		return "", err
	}
	return resp.FieldID, nil
}

func (s *GRPCClient) UpdateDataItem(ctx context.Context, fieldID, value string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodUpdateDataItem, &api.UpdateDataItemRequest{FieldID: fieldID, Value: value})
	return err
}

func (s *GRPCClient) DeleteDataItem(ctx context.Context, fieldID string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodDeleteDataItem, &api.DeleteDataItemRequest{FieldID: fieldID})
	return err
}

func (s *GRPCClient) CreateRoleEdge(ctx context.Context, parentID, childID, relationship string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodCreateRoleEdge,
		&api.RoleEdgeRequest{ParentRoleID: parentID, ChildRoleID: childID, Relationship: relationship})
	return err
}

func (s *GRPCClient) DeleteRoleParent(ctx context.Context, parentID, childID string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodDeleteRoleParent, &api.RoleEdgeRequest{ParentRoleID: parentID, ChildRoleID: childID})
	return err
}

func (s *GRPCClient) ShareRole(ctx context.Context, sourceID, targetID, relationship string) (string, error) {
	resp, err := invoke[api.ShareResponse](ctx, s, api.MethodShareRole,
		&api.ShareRoleRequest{SourceRoleID: sourceID, TargetRoleID: targetID, Relationship: relationship})
	if err != nil {
		return "", err
	}
	return resp.ShareID, nil
}

func (s *GRPCClient) ShareDataItem(ctx context.Context, fieldID, targetID, permission string) (string, error) {
	resp, err := invoke[api.ShareResponse](ctx, s, api.MethodShareDataItem,
		&api.ShareDataItemRequest{FieldID: fieldID, TargetRoleID: targetID, Permission: permission})
	if err != nil {
		return "", err
	}
	return resp.ShareID, nil
}

func (s *GRPCClient) ListPendingShares(ctx context.Context) (*api.ListPendingSharesResponse, error) {
	return invoke[api.ListPendingSharesResponse](ctx, s, api.MethodListPendingShares, &api.Empty{})
}

func (s *GRPCClient) AcceptRoleShare(ctx context.Context, shareID string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodAcceptRoleShare, &api.AcceptShareRequest{ShareID: shareID})
	return err
}

func (s *GRPCClient) AcceptDataShare(ctx context.Context, shareID string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodAcceptDataShare, &api.AcceptShareRequest{ShareID: shareID})
	return err
}

func (s *GRPCClient) PrepareRecoveryKey(ctx context.Context, targetID string, trusteeIDs []string) (string, error) {
	resp, err := invoke[api.PrepareRecoveryKeyResponse](ctx, s, api.MethodPrepareRecoveryKey,
		&api.PrepareRecoveryKeyRequest{TargetRoleID: targetID, TrusteeRoleIDs: trusteeIDs})
	if err != nil {
		return "", err
	}
	return resp.PlanID, nil
}

func (s *GRPCClient) ActivateRecoveryKey(ctx context.Context, planID string) error {
	_, err := invoke[api.Empty](ctx, s, api.MethodActivateRecoveryKey, &api.ActivateRecoveryKeyRequest{PlanID: planID})
	return err
}

func (s *GRPCClient) RevokeRecoveryShares(ctx context.Context, targetID string) (int64, error) {
	resp, err := invoke[api.RevokeRecoverySharesResponse](ctx, s, api.MethodRevokeRecoveryShares,
		&api.RevokeRecoverySharesRequest{TargetRoleID: targetID})
	if err != nil {
		return 0, err
	}
	return resp.Revoked, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return ErrForbidden
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.FailedPrecondition:
		if strings.Contains(st.Message(), common.ErrMasterKeyUnavailable.Error()) {
			return ErrSecretNeeded
		}
		return fmt.Errorf("rpc error: %s", st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
