package models

// ✅ Field bounds, measured in code points
const (
	MaxDisplayNameLength = 10
	MaxCommentLength     = 100
)

// ✅ Identifier bounds in bytes; both fit the narrowest column that stores them
const (
	MaxClientIDLength     = 64
	MaxSessionTokenLength = 64
)

// ✅ Values captured when the real ones are unavailable
const (
	DefaultDisplayName = "一位匿名Zako"
	UnknownLocation    = "未知归属地"
	UnknownISP         = "未知运营商"
	UnknownOS          = "未知系统"
	LANLocation        = "内网地址"
	InvalidIPAddress   = "Invalid IP"
)

// ✅ Listing views
const (
	ViewRecent = "recent"
	ViewAll    = "all"

	RecentListingSize = 5
)

// ✅ Registration outcomes
const (
	OutcomeCreated       = "created"
	OutcomeAlreadyExists = "already_exists"
)
