package upload

import (
	"errors"
	"net/http"
)

// Kind 上传请求失败的分类
type Kind int

const (
	KindMissingFile Kind = iota + 1
	KindEmptyFilename
	KindDisallowedType
	KindProcessingFailure
)

func (k Kind) String() string {
	switch k {
	case KindMissingFile:
		return "MissingFile"
	case KindEmptyFilename:
		return "EmptyFilename"
	case KindDisallowedType:
		return "DisallowedType"
	case KindProcessingFailure:
		return "ProcessingFailure"
	default:
		return "Unknown"
	}
}

// Error 携带分类与底层错误。状态码与对外消息只在这里决定。
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Message() }

func (e *Error) Unwrap() error { return e.Err }

// Status 返回该分类对应的 HTTP 状态码
func (e *Error) Status() int {
	if e.Kind == KindProcessingFailure {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// Message 返回写入响应体 {"error": ...} 的文本
func (e *Error) Message() string {
	switch e.Kind {
	case KindMissingFile:
		return "No image file provided"
	case KindEmptyFilename:
		return "No selected file"
	case KindDisallowedType:
		return "Invalid file type"
	case KindProcessingFailure:
		msg := "unknown error"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return "Failed to process image: " + msg
	default:
		return "Unknown error"
	}
}

// Processing 把解码、去背景、编码阶段的任意错误归为一类
func Processing(err error) *Error {
	return &Error{Kind: KindProcessingFailure, Err: err}
}

// From 取出 err 链上的 *Error；未分类的错误归为 KindProcessingFailure
func From(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return Processing(err)
}
