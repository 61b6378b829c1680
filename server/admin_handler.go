package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"musichud/core/auth"
	"musichud/core/player"
	"musichud/logger"
	"musichud/model"
)

type contextKey string

const subjectKey contextKey = "subject"

// Controller 管理接口可执行的播放操作
type Controller interface {
	Status() player.Status
	Queue() []model.Track
	Skip() bool
	Start() bool
	Stop() bool
}

// ReloadFunc 重新加载配置，返回被清理的缓存条目数
type ReloadFunc func(ctx context.Context) (int, error)

// AdminHandler 管理员 HTTP 接口
type AdminHandler struct {
	player       Controller
	issuer       *auth.TokenIssuer
	passwordHash string
	reload       ReloadFunc
}

// NewAdminHandler 创建管理接口处理器
func NewAdminHandler(ctrl Controller, issuer *auth.TokenIssuer, passwordHash string, reload ReloadFunc) *AdminHandler {
	return &AdminHandler{player: ctrl, issuer: issuer, passwordHash: passwordHash, reload: reload}
}

// LoginResponse 管理员登录结果
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ActionResponse 控制操作结果
type ActionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ReloadResponse 重新加载结果
type ReloadResponse struct {
	OK      bool `json:"ok"`
	Evicted int  `json:"evicted"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[Admin] 写入响应失败", logger.ErrorField(err))
	}
}

// LoginHandler 校验管理员密码并签发令牌
func (h *AdminHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("[Admin] 解析请求体失败", logger.ErrorField(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}
	if !auth.CheckPasswordHash(req.Password, h.passwordHash) {
		logger.Warn("[Admin] 密码验证失败", logger.String("remote", r.RemoteAddr))
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := h.issuer.GenerateToken(auth.RoleAdmin)
	if err != nil {
		logger.Error("[Admin] 生成Token失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	logger.Info("[Admin] 管理员登录", logger.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

// AuthMiddleware 校验 Bearer 令牌
func (h *AdminHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := h.issuer.ParseToken(parts[1])
		if err != nil || claims.Role != auth.RoleAdmin {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// StatusHandler 播放状态
func (h *AdminHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.Status())
}

// QueueHandler 当前队列
func (h *AdminHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	queue := h.player.Queue()
	if queue == nil {
		queue = []model.Track{}
	}
	writeJSON(w, http.StatusOK, queue)
}

// SkipHandler 强制切歌
func (h *AdminHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	if !h.player.Skip() {
		writeJSON(w, http.StatusConflict, ActionResponse{OK: false, Message: "nothing is playing"})
		return
	}
	logger.Info("[Admin] 强制切歌")
	writeJSON(w, http.StatusOK, ActionResponse{OK: true})
}

// StartHandler 启动播放循环
func (h *AdminHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !h.player.Start() {
		writeJSON(w, http.StatusOK, ActionResponse{OK: false, Message: "already running"})
		return
	}
	logger.Info("[Admin] 播放循环已启动")
	writeJSON(w, http.StatusOK, ActionResponse{OK: true})
}

// StopHandler 停止播放循环
func (h *AdminHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !h.player.Stop() {
		writeJSON(w, http.StatusOK, ActionResponse{OK: false, Message: "not running"})
		return
	}
	logger.Info("[Admin] 播放循环已停止")
	writeJSON(w, http.StatusOK, ActionResponse{OK: true})
}

// ReloadHandler 重新加载配置并清空目录缓存
func (h *AdminHandler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	evicted, err := h.reload(r.Context())
	if err != nil {
		logger.Error("[Admin] 重新加载配置失败", logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{OK: true, Evicted: evicted})
}
