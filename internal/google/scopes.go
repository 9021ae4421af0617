package google

// DefaultOAuthScopes are requested on every sign-in.
//
//   - openid and userinfo.email identify the user
//   - drive grants read and write access to every file in the user's Drive
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/drive",
}
