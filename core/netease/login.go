package netease

import (
	"context"
	"fmt"

	"musichud/core/session"
	"musichud/model"
)

// 扫码状态码
const (
	qrCodeExpired = 800
	qrCodeSuccess = 803
)

// LoginAnonymous 游客登录，返回 cookie
func (c *Client) LoginAnonymous(ctx context.Context) (string, error) {
	var result struct {
		Cookie string `json:"cookie"`
	}
	if err := c.post(ctx, "/register/anonimous", nil, nil, "", &result); err != nil {
		return "", err
	}
	return result.Cookie, nil
}

// RefreshCredential 刷新登录态，接口未返回新 cookie 时结果为空
func (c *Client) RefreshCredential(ctx context.Context, cookie string) (string, error) {
	var result struct {
		Cookie string `json:"cookie"`
	}
	if err := c.post(ctx, "/login/refresh", nil, nil, cookie, &result); err != nil {
		return "", err
	}
	return result.Cookie, nil
}

// FetchProfile 当前账号资料，没有 profile 时为匿名
func (c *Client) FetchProfile(ctx context.Context, cookie string) (model.Profile, error) {
	var result struct {
		Profile *struct {
			Nickname      *string `json:"nickname"`
			AvatarURL     string  `json:"avatarUrl"`
			BackgroundURL string  `json:"backgroundUrl"`
			UserID        int64   `json:"userId"`
		} `json:"profile"`
	}
	if err := c.get(ctx, "/user/account", nil, cookie, &result); err != nil {
		return model.AnonymousProfile, err
	}
	if result.Profile == nil {
		return model.AnonymousProfile, nil
	}
	profile := model.Profile{
		Nickname:      model.AnonymousProfile.Nickname,
		AvatarURL:     result.Profile.AvatarURL,
		BackgroundURL: result.Profile.BackgroundURL,
		UserID:        result.Profile.UserID,
	}
	if result.Profile.Nickname != nil {
		profile.Nickname = *result.Profile.Nickname
	}
	return profile, nil
}

// BeginQR 申请扫码 key 并生成 base64 二维码
func (c *Client) BeginQR(ctx context.Context) (string, string, error) {
	var keyResp struct {
		Data struct {
			Unikey string `json:"unikey"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/login/qr/key", nil, "", &keyResp); err != nil {
		return "", "", err
	}
	key := keyResp.Data.Unikey
	if key == "" {
		return "", "", fmt.Errorf("%w: 二维码 key 为空", ErrRemoteLookup)
	}

	var qrResp struct {
		Data struct {
			QRImg string `json:"qrimg"`
		} `json:"data"`
	}
	body := map[string]interface{}{"key": key, "qrimg": true}
	if err := c.post(ctx, "/login/qr/create", nil, body, "", &qrResp); err != nil {
		return "", "", err
	}
	return key, qrResp.Data.QRImg, nil
}

// PollQR 查询扫码状态，803 成功，800 过期，其余视为等待
func (c *Client) PollQR(ctx context.Context, key string) (session.QRStatus, string, error) {
	var result struct {
		Code   int    `json:"code"`
		Cookie string `json:"cookie"`
	}
	if err := c.post(ctx, "/login/qr/check", nil, map[string]interface{}{"key": key}, "", &result); err != nil {
		return session.QRPending, "", err
	}
	switch result.Code {
	case qrCodeSuccess:
		return session.QRSuccess, result.Cookie, nil
	case qrCodeExpired:
		return session.QRExpired, "", nil
	default:
		return session.QRPending, "", nil
	}
}

var _ Gateway = (*Client)(nil)
