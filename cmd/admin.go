package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	adminAddr     string
	adminPassword string
)

// adminClient 管理员 HTTP 接口客户端
type adminClient struct {
	base       string
	httpClient *http.Client
}

func newAdminClient(addr string) *adminClient {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &adminClient{
		base:       strings.TrimRight(addr, "/") + "/api/admin",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *adminClient) login(password string) (string, error) {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Post(c.base+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("请求登录失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("登录失败: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("解析登录响应失败: %w", err)
	}
	return out.Token, nil
}

// call 执行一个需鉴权的操作，返回格式化后的 JSON
func (c *adminClient) call(method, path, token string) (string, error) {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode >= 500 {
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return strings.TrimSpace(string(raw)), nil
	}
	return pretty.String(), nil
}

type adminOp struct {
	use    string
	short  string
	method string
	path   string
}

var adminOps = []adminOp{
	{"status", "查看播放状态", http.MethodGet, "/status"},
	{"queue", "查看点歌队列", http.MethodGet, "/queue"},
	{"skip", "强制切到下一首", http.MethodPost, "/skip"},
	{"start", "启动播放循环", http.MethodPost, "/start"},
	{"stop", "停止播放循环", http.MethodPost, "/stop"},
	{"reload", "重新加载配置并清空目录缓存", http.MethodPost, "/reload"},
}

func adminCommand(op adminOp) *cobra.Command {
	return &cobra.Command{
		Use:   op.use,
		Short: op.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := adminPassword
			if password == "" {
				password = os.Getenv("MUSICHUD_ADMIN_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("需要 --password 或 MUSICHUD_ADMIN_PASSWORD")
			}
			client := newAdminClient(adminAddr)
			token, err := client.login(password)
			if err != nil {
				return err
			}
			out, err := client.call(op.method, op.path, token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "addr", "http://localhost:8080", "管理接口地址")
	rootCmd.PersistentFlags().StringVar(&adminPassword, "password", "", "管理员密码")
	for _, op := range adminOps {
		rootCmd.AddCommand(adminCommand(op))
	}
}
