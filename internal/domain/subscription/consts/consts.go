package consts

// HeaderUserID carries the user id the gateway authenticated
const HeaderUserID = "X-User-ID"

// Request user-value keys set by the router and the auth middleware
const (
	UserValueKind     = "kind"
	UserValueTargetID = "target_id"
	UserValueUserID   = "user_id"
)
