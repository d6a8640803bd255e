package entity

// UserType is the role assigned to an account.
type UserType string

const (
	UserTypeAdmin  UserType = "admin"
	UserTypeOwner  UserType = "owner"
	UserTypeTenant UserType = "tenant"
	UserTypeAgent  UserType = "agent"
)

// AuthProvider records which credential paths can authenticate an account.
type AuthProvider string

const (
	ProviderLocal    AuthProvider = "local"
	ProviderExternal AuthProvider = "external"
	ProviderBoth     AuthProvider = "both"
)

// Account is a row of the login table.
// PasswordHash is nil for accounts that only ever signed in externally.
type Account struct {
	UserID       string       `db:"user_id"`
	Username     string       `db:"username"`
	PasswordHash *string      `db:"password_hash"`
	UserType     UserType     `db:"user_type"`
	IsActive     bool         `db:"is_active"`
	AuthProvider AuthProvider `db:"auth_provider"`
}

// Profile is the personal-information row tied one-to-one to an Account.
type Profile struct {
	UserID       string  `db:"user_id"`
	FullName     string  `db:"full_name"`
	PhoneNumber  *string `db:"phone_number"`
	Email        string  `db:"email"`
	Address      *string `db:"address"`
	Gender       *string `db:"gender"`
	ProfileImage *string `db:"profile_image"`
}

// Match is the projection used when reconciling an email against existing accounts.
type Match struct {
	UserID       string       `db:"user_id"`
	UserType     UserType     `db:"user_type"`
	AuthProvider AuthProvider `db:"auth_provider"`
	IsActive     bool         `db:"is_active"`
}

// Credential is the active-account projection used by password login.
// Profile columns are nullable because the profile is left-joined.
type Credential struct {
	UserID       string       `db:"user_id"`
	Username     string       `db:"username"`
	PasswordHash *string      `db:"password_hash"`
	UserType     UserType     `db:"user_type"`
	AuthProvider AuthProvider `db:"auth_provider"`
	FullName     *string      `db:"full_name"`
	PhoneNumber  *string      `db:"phone_number"`
	ProfileImage *string      `db:"profile_image"`
}

// ProfileView is what the profile endpoint returns.
type ProfileView struct {
	FullName     string       `db:"full_name" json:"full_name"`
	PhoneNumber  *string      `db:"phone_number" json:"phone_number"`
	Email        string       `db:"email" json:"email"`
	Address      *string      `db:"address" json:"address"`
	Gender       *string      `db:"gender" json:"gender"`
	ProfileImage *string      `db:"profile_image" json:"profile_image"`
	UserType     UserType     `db:"user_type" json:"user_type"`
	AuthProvider AuthProvider `db:"auth_provider" json:"auth_provider"`
}
