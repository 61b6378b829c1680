package model

import (
	"time"

	"github.com/google/uuid"
)

// LoginType 登录方式，线上以名称传输
type LoginType string

const (
	LoginUnlogged  LoginType = "UNLOGGED"
	LoginAnonymous LoginType = "ANONYMOUS"
	LoginQRCode    LoginType = "QR_CODE"
	LoginCaptcha   LoginType = "CAPTCHA"
	LoginCookie    LoginType = "COOKIE"
)

// LoginTypeFromName 未知名称视为 UNLOGGED
func LoginTypeFromName(name string) LoginType {
	switch t := LoginType(name); t {
	case LoginAnonymous, LoginQRCode, LoginCaptcha, LoginCookie:
		return t
	default:
		return LoginUnlogged
	}
}

// LoginCookieInfo 登录凭据
type LoginCookieInfo struct {
	Type        LoginType `json:"type"`
	RawCookie   string    `json:"rawCookie"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// UnloggedCookie 未登录凭据
func UnloggedCookie(now time.Time) LoginCookieInfo {
	return LoginCookieInfo{Type: LoginUnlogged, GeneratedAt: now}
}

// Client 已连接客户端的身份
type Client struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
