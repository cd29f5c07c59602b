package domain

// Role enumerates platform roles carried in access tokens.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleHRManager Role = "HR_MANAGER"
	RoleEmployee  Role = "EMPLOYEE"
)
