package service

import "chainvote-backend/models"

// GuardState 路由守卫的判定结果
type GuardState string

const (
	GuardLoading         GuardState = "loading"
	GuardUnauthenticated GuardState = "unauthenticated"
	GuardUnauthorized    GuardState = "unauthorized"
	GuardAuthorized      GuardState = "authorized"
)

// HomePath 被拒绝访问时跳转的页面
const HomePath = "/"

// Decision 路由守卫对一次访问的判定
type Decision struct {
	State    GuardState `json:"state"`
	Redirect string     `json:"redirect,omitempty"`
}

// Allowed 是否允许渲染受保护内容
func (d Decision) Allowed() bool { return d.State == GuardAuthorized }

// Guard 判定会话能否访问要求 required 角色的页面；纯函数，不做任何 I/O
//
// required 为空表示只要求已登录。
func Guard(session Session, required models.Role) Decision {
	switch {
	case session.State == SessionLoading:
		return Decision{State: GuardLoading}
	case session.State != SessionActive || session.Profile == nil:
		return Decision{State: GuardUnauthenticated, Redirect: HomePath}
	case required != "" && session.Profile.Role != required:
		return Decision{State: GuardUnauthorized, Redirect: HomePath}
	default:
		return Decision{State: GuardAuthorized}
	}
}

// DashboardPath 登录后按角色进入的页面
func DashboardPath(role models.Role) string {
	switch role {
	case models.RoleCompany:
		return "/company/dashboard"
	case models.RoleVoter:
		return "/voter/elections"
	default:
		return HomePath
	}
}
