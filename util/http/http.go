package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次请求。
//
// Body 可以是 nil、io.Reader、[]byte 或任意可 JSON 序列化的值。
// Response 为 *[]byte 时写入原始响应体，其余非 nil 值按 JSON 反序列化。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	// 单次请求超时，0 表示只受 client 默认超时限制
	Timeout time.Duration
}
