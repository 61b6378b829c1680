// Package netease 兼容 NeteaseCloudMusicApi 的目录与登录网关
package netease

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"musichud/core/session"
	"musichud/logger"
	"musichud/model"

	"golang.org/x/time/rate"
)

// ErrRemoteLookup 远程接口调用失败
var ErrRemoteLookup = errors.New("remote lookup failed")

// Gateway 目录与登录接口
type Gateway interface {
	LookupTrack(ctx context.Context, id int64) (model.Track, error)
	Search(ctx context.Context, query string) ([]model.Track, error)
	ResolveResource(ctx context.Context, id int64, cookie string) (model.Resource, error)
	FetchLyrics(ctx context.Context, id int64, cookie string) (model.LyricInfo, error)
	ListUserPlaylists(ctx context.Context, uid int64, cookie string) ([]model.Playlist, error)
	FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error)
	LoginAnonymous(ctx context.Context) (string, error)
	RefreshCredential(ctx context.Context, cookie string) (string, error)
	FetchProfile(ctx context.Context, cookie string) (model.Profile, error)
	BeginQR(ctx context.Context) (key, image string, err error)
	PollQR(ctx context.Context, key string) (session.QRStatus, string, error)
}

// Options 客户端配置
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Client 网易云音乐API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient 创建新的API客户端
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:3000"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, opts.Burst),
		now:        time.Now,
	}
}

// SetBaseURL 设置API基础URL
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// NormalizeCookie 整理客户端保存的 cookie：按 ";;" 切分，每段只保留第一个 k=v
func NormalizeCookie(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := []string{raw}
	if strings.Contains(raw, ";;") {
		parts = strings.Split(raw, ";;")
	}
	pairs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.Contains(pair, "=") {
			pairs = append(pairs, pair)
		}
	}
	return strings.Join(pairs, "; ")
}

func (c *Client) buildURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.baseURL + path + "?" + query.Encode()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, cookie string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, query), nil)
	if err != nil {
		return fmt.Errorf("%w: 创建请求失败: %w", ErrRemoteLookup, err)
	}
	return c.do(req, path, cookie, out)
}

// post 未携带 cookie 时在请求体中加入 noCookie
func (c *Client) post(ctx context.Context, path string, query url.Values, body map[string]interface{}, cookie string, out interface{}) error {
	if body == nil {
		body = map[string]interface{}{}
	}
	if NormalizeCookie(cookie) == "" {
		body["noCookie"] = true
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: 编码请求体失败: %w", ErrRemoteLookup, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path, query), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: 创建请求失败: %w", ErrRemoteLookup, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, cookie, out)
}

func (c *Client) do(req *http.Request, path, cookie string, out interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("%w: %s 限流等待失败: %w", ErrRemoteLookup, path, err)
	}
	if normalized := NormalizeCookie(cookie); normalized != "" {
		req.Header.Set("Cookie", normalized)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("netease request failed", logger.String("path", path), logger.ErrorField(err))
		return fmt.Errorf("%w: %s 请求失败: %w", ErrRemoteLookup, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s 读取响应失败: %w", ErrRemoteLookup, path, err)
	}
	logger.Debug("netease request",
		logger.String("method", req.Method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s 返回错误状态码: %d", ErrRemoteLookup, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s 解析响应失败: %w", ErrRemoteLookup, path, err)
	}
	return nil
}
