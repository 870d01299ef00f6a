package api

import "time"

type Empty struct{}

type RegisterRequest struct {
	LoginID     string `json:"loginId"`
	UserSalt    []byte `json:"userSalt"`
	H3          []byte `json:"h3"`
	DisplayName string `json:"displayName,omitempty"`
}

type RegisterResponse struct {
	AccountID string `json:"accountId"`
}

type GetSaltRequest struct {
	LoginID string `json:"loginId"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type CheckAvailabilityRequest struct {
	LoginID string `json:"loginId"`
}

type CheckAvailabilityResponse struct {
	Available bool `json:"available"`
}

type LoginRequest struct {
	LoginID    string `json:"loginId"`
	H3         []byte `json:"h3"`
	SecureMode bool   `json:"secureMode"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
}

type LoginResponse struct {
	AccountID   string `json:"accountId"`
	SessionID   string `json:"sessionId"`
	SecureMode  bool   `json:"secureMode"`
	AccessToken string `json:"accessToken"`
}

type ChangePasswordRequest struct {
	OldH3 []byte `json:"oldH3"`
	NewH3 []byte `json:"newH3"`
}

type SetSecureModeRequest struct {
	Enabled bool `json:"enabled"`
}

type VerifyLedgerRequest struct {
	Chain  string `json:"chain"`
	RoleID string `json:"roleId,omitempty"`
}

type LedgerSummary struct {
	Chain                  string `json:"chain"`
	RoleID                 string `json:"roleId,omitempty"`
	Total                  int    `json:"total"`
	Unsigned               int    `json:"unsigned"`
	HashMismatches         int    `json:"hashMismatches"`
	PreviousHashMismatches int    `json:"previousHashMismatches"`
	SignaturesVerified     int    `json:"signaturesVerified"`
	SignaturesMissing      int    `json:"signaturesMissing"`
	SignaturesInvalid      int    `json:"signaturesInvalid"`
	RoleSignedEntries      int    `json:"roleSignedEntries"`
	RoleInvalidSignatures  int    `json:"roleInvalidSignatures"`
}

// Intact reports whether every stored hash and link recomputed.
func (s *LedgerSummary) Intact() bool {
	return s.HashMismatches == 0 && s.PreviousHashMismatches == 0
}

type ExportLedgerRequest struct {
	Chain string `json:"chain"`
}

type ExportLedgerResponse struct {
	Key         string `json:"key"`
	Entries     int    `json:"entries"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type SearchRolesRequest struct {
	Query string `json:"query"`
}

type RoleSummary struct {
	RoleID   string `json:"roleId"`
	RoleKind string `json:"roleKind"`
	Nick     string `json:"nick"`
}

type SearchRolesResponse struct {
	Roles []RoleSummary `json:"roles"`
}

type RoleView struct {
	RoleID       string            `json:"roleId"`
	RoleKind     string            `json:"roleKind"`
	Label        string            `json:"label"`
	Relationship string            `json:"relationship"`
	CanWrite     bool              `json:"canWrite"`
	Fields       map[string]string `json:"fields"`
}

type ListRolesResponse struct {
	Roles []RoleView `json:"roles"`
}

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

type GraphResponse struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type Field struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type CreateRoleRequest struct {
	ParentRoleID string  `json:"parentRoleId,omitempty"`
	Relationship string  `json:"relationship,omitempty"`
	RoleKind     string  `json:"roleKind,omitempty"`
	Fields       []Field `json:"fields,omitempty"`
}

type CreateRoleResponse struct {
	RoleID string `json:"roleId"`
}

type CreateDataItemRequest struct {
	RoleID string `json:"roleId"`
	Field
}

type CreateDataItemResponse struct {
	FieldID string `json:"fieldId"`
}

type UpdateDataItemRequest struct {
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
}

type DeleteDataItemRequest struct {
	FieldID string `json:"fieldId"`
}

type RoleEdgeRequest struct {
	ParentRoleID string `json:"parentRoleId"`
	ChildRoleID  string `json:"childRoleId"`
	Relationship string `json:"relationship,omitempty"`
}

type ShareRoleRequest struct {
	SourceRoleID string `json:"sourceRoleId"`
	TargetRoleID string `json:"targetRoleId"`
	Relationship string `json:"relationship"`
}

type ShareDataItemRequest struct {
	FieldID      string `json:"fieldId"`
	TargetRoleID string `json:"targetRoleId"`
	Permission   string `json:"permission,omitempty"`
}

type ShareResponse struct {
	ShareID string `json:"shareId"`
}

type PendingRoleShare struct {
	ID           string    `json:"id"`
	SourceRoleID string    `json:"sourceRoleId"`
	TargetRoleID string    `json:"targetRoleId"`
	Relationship string    `json:"relationship"`
	CreatedUTC   time.Time `json:"createdUtc"`
}

type PendingDataShare struct {
	ID           string    `json:"id"`
	FieldID      string    `json:"fieldId"`
	TargetRoleID string    `json:"targetRoleId"`
	Permission   string    `json:"permission"`
	CreatedUTC   time.Time `json:"createdUtc"`
}

type ListPendingSharesResponse struct {
	Roles []PendingRoleShare `json:"roles"`
	Data  []PendingDataShare `json:"data"`
}

type AcceptShareRequest struct {
	ShareID string `json:"shareId"`
}

type PrepareRecoveryKeyRequest struct {
	TargetRoleID   string   `json:"targetRoleId"`
	TrusteeRoleIDs []string `json:"trusteeRoleIds"`
}

type PrepareRecoveryKeyResponse struct {
	PlanID string `json:"planId"`
}

type ActivateRecoveryKeyRequest struct {
	PlanID string `json:"planId"`
}

type RevokeRecoverySharesRequest struct {
	TargetRoleID string `json:"targetRoleId"`
}

type RevokeRecoverySharesResponse struct {
	Revoked int64 `json:"revoked"`
}
