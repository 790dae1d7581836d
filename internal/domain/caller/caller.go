package caller

import "errors"

// Role は呼び出し元の権限
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// IsValid は定義済みの権限かを返す
func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleOperator || r == RoleAdmin
}

var (
	ErrUnauthenticated = errors.New("認証が必要です")
	ErrForbidden       = errors.New("この操作を行う権限がありません")
)

// Caller は認証済みの呼び出し元（アクセストークンから取り出される）
type Caller struct {
	CustomerID string
	Email      string
	Role       Role
}

// Is は呼び出し元が roles のいずれかを持つかを返す
func (c Caller) Is(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin は管理者かを返す
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Owns は ownerID のリソースを操作できるか（本人または管理者）を返す
func (c Caller) Owns(ownerID string) bool {
	return c.IsAdmin() || (c.CustomerID != "" && c.CustomerID == ownerID)
}

// Require は roles のいずれかを持たない場合 ErrForbidden を返す
func (c Caller) Require(roles ...Role) error {
	if c.CustomerID == "" {
		return ErrUnauthenticated
	}
	if !c.Is(roles...) {
		return ErrForbidden
	}
	return nil
}
