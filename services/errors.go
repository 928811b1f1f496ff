package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"zako_server/models"
)

// Kind groups service failures by how a caller should react to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindUnauthorized
	KindTransientExternal
	KindStore
)

// Stable machine readable codes.
const (
	CodeInvalidParams     = "invalid_params"
	CodeMissingClientID   = "missing_client_id"
	CodeNotFound          = "not_found"
	CodeUnauthorized      = "unauthorized"
	CodeSelfLike          = "self_like"
	CodeAlreadyLiked      = "already_liked"
	CodeNameEmpty         = "name_empty"
	CodeNameTooLong       = "name_too_long"
	CodeCommentTooLong    = "comment_too_long"
	CodeStoreUnavailable  = "store_unavailable"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeGeoLookupDegraded = "geo_lookup_degraded"
)

// Error is a classified service failure. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// storeFailure hides the cause behind a generic message.
func storeFailure(err error) *Error {
	return &Error{Kind: KindStore, Code: CodeStoreUnavailable, Message: "数据库暂时不可用，请稍后再试.", Err: err}
}

var (
	errMissingClientID = newError(KindValidation, CodeMissingClientID, "客户端标识丢失，无法执行操作.")
	errInvalidParams   = newError(KindValidation, CodeInvalidParams, "无效或缺失的参数.")
	errClientIDTooLong = newError(KindValidation, CodeInvalidParams, "客户端标识无效.")
	errUnauthorized    = newError(KindUnauthorized, CodeUnauthorized, "身份验证失败，请先认证成为Zako.")
	errTargetNotFound  = newError(KindNotFound, CodeNotFound, "被点赞的用户不存在.")
	errRecordNotFound  = newError(KindNotFound, CodeNotFound, "未找到匹配的认证记录.")
	errSelfLike        = newError(KindConflict, CodeSelfLike, "你不能给自己点赞哦！")
	errAlreadyLiked    = newError(KindConflict, CodeAlreadyLiked, "你已经点过赞了！")
	errNameEmpty       = newError(KindValidation, CodeNameEmpty, "昵称不能为空.")
	errNameTooLong     = newError(KindValidation, CodeNameTooLong, "昵称不能超过10个字符.")
	errCommentTooLong  = newError(KindValidation, CodeCommentTooLong, "留言不能超过100个字符.")
)

// ErrMethodNotAllowed is answered to non-POST calls on mutating endpoints.
var ErrMethodNotAllowed = newError(KindValidation, CodeMethodNotAllowed, "无效的请求方法.")

// ErrRouteNotFound answers requests for paths the server does not serve.
var ErrRouteNotFound = newError(KindNotFound, CodeNotFound, "请求的资源不存在.")

// AsError extracts the classified error, treating anything unclassified as a store failure.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return storeFailure(err)
}

// KindOf returns the service kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// CodeOf returns the machine readable code of err, or "".
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// checkClientID rejects identifiers that are blank or longer than any store accepts.
func checkClientID(clientID string) error {
	switch {
	case clientID == "":
		return errMissingClientID
	case len(clientID) > models.MaxClientIDLength:
		return errClientIDTooLong
	default:
		return nil
	}
}

// ParseParticipantID validates a participant id parameter.
func ParseParticipantID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidParams
	}
	return id, nil
}
