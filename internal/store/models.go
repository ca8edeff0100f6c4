package store

import "time"

type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash []byte
	IsAdmin      bool
	Active       bool
	// AuthToken 是长期凭据（auth_ 前缀），可兑换为标记 is_generated_from_auth_token 的访问令牌。
	AuthToken string
	Avatar    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Invitation struct {
	ID        int64
	Email     string
	Code      string
	CreatedAt time.Time
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Thread struct {
	ID       int64
	PublicID string
	UserID   int64
	// IsEphemeral 的线程仅所有者可见；SetPersisted 会把它转为持久线程。
	IsEphemeral bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ThreadMessage struct {
	ID        int64
	PublicID  string
	ThreadID  int64
	Role      string
	Content   string
	CreatedAt time.Time
}

type Page struct {
	ID        int64
	PublicID  string
	AuthorID  int64
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PageSection struct {
	ID        int64
	PublicID  string
	PageID    int64
	Title     string
	Content   string
	Position  int
	CreatedAt time.Time
}

type JobRun struct {
	ID         int64
	Job        string
	Command    string
	ExitCode   *int
	Stdout     string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

type UserEvent struct {
	ID        int64
	UserID    int64
	Kind      string
	Payload   string
	CreatedAt time.Time
}

type UserGroup struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type UserGroupMembership struct {
	UserGroupID  int64
	UserID       int64
	IsGroupAdmin bool
	CreatedAt    time.Time
}

type GitRepository struct {
	ID        int64
	Name      string
	GitURL    string
	CreatedAt time.Time
}

type Integration struct {
	ID          int64
	Kind        string
	DisplayName string
	AccessToken string
	APIBase     *string
	CreatedAt   time.Time
}
