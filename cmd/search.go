package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"musichud/config"
	"musichud/core/netease"

	"github.com/spf13/cobra"
)

var (
	searchLimit int
	searchPick  int
)

var searchCmd = &cobra.Command{
	Use:   "search <keywords>",
	Short: "直接查询网易云音乐目录",
	Long:  `搜索歌曲并打印结果，--pick 指定序号时额外解析该歌曲的播放地址与歌词`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		client := netease.NewClient(netease.Options{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.APITimeout,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		keyword := strings.Join(args, " ")
		fmt.Printf("正在搜索: %s\n", keyword)
		tracks, err := client.Search(ctx, keyword)
		if err != nil {
			log.Fatalf("搜索失败: %v", err)
		}
		if len(tracks) == 0 {
			fmt.Println("未找到相关歌曲")
			return
		}
		if searchLimit > 0 && len(tracks) > searchLimit {
			tracks = tracks[:searchLimit]
		}

		fmt.Printf("\n找到 %d 首歌曲:\n", len(tracks))
		for i, t := range tracks {
			fmt.Printf("%d. [%d] %s - %s [%s]\n", i+1, t.ID, t.Name, t.ArtistNames(), t.Album.Name)
		}

		if searchPick < 1 {
			return
		}
		if searchPick > len(tracks) {
			fmt.Println("无效的选择")
			return
		}
		selected := tracks[searchPick-1]
		res, err := client.ResolveResource(ctx, selected.ID, "")
		if err != nil {
			log.Fatalf("获取播放地址失败: %v", err)
		}
		fmt.Printf("\n%s - %s\n", selected.Name, selected.ArtistNames())
		fmt.Printf("播放地址: %s\n", res.URL)
		fmt.Printf("格式: %s, 码率: %d, 收费: %d\n", res.Format, res.Bitrate, res.Fee)
		if res.Lyrics.Main.Text != "" {
			fmt.Printf("\n%s\n", res.Lyrics.Main.Text)
		}
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "最多显示的结果数")
	searchCmd.Flags().IntVarP(&searchPick, "pick", "p", 0, "解析第 N 首的播放地址")
	rootCmd.AddCommand(searchCmd)
}
