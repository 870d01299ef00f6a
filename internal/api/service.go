package api

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "recreatio.v1.Vault"

// Method names. The first four are callable without a session.
const (
	MethodRegister             = "Register"
	MethodGetSalt              = "GetSalt"
	MethodCheckAvailability    = "CheckAvailability"
	MethodLogin                = "Login"
	MethodLogout               = "Logout"
	MethodChangePassword       = "ChangePassword"
	MethodSetSecureMode        = "SetSecureMode"
	MethodVerifyLedger         = "VerifyLedger"
	MethodExportLedger         = "ExportLedger"
	MethodSearchRoles          = "SearchRoles"
	MethodListRoles            = "ListRoles"
	MethodGetGraph             = "GetGraph"
	MethodCreateRole           = "CreateRole"
	MethodCreateDataItem       = "CreateDataItem"
	MethodUpdateDataItem       = "UpdateDataItem"
	MethodDeleteDataItem       = "DeleteDataItem"
	MethodCreateRoleEdge       = "CreateRoleEdge"
	MethodDeleteRoleParent     = "DeleteRoleParent"
	MethodShareRole            = "ShareRole"
	MethodShareDataItem        = "ShareDataItem"
	MethodListPendingShares    = "ListPendingShares"
	MethodAcceptRoleShare      = "AcceptRoleShare"
	MethodAcceptDataShare      = "AcceptDataShare"
	MethodPrepareRecoveryKey   = "PrepareRecoveryKey"
	MethodActivateRecoveryKey  = "ActivateRecoveryKey"
	MethodRevokeRecoveryShares = "RevokeRecoveryShares"
)

// FullMethod returns the path gRPC routes method on.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Public reports whether method may be called without an access token.
func Public(method string) bool {
	switch method {
	case MethodRegister, MethodGetSalt, MethodCheckAvailability, MethodLogin:
		return true
	}
	return false
}
