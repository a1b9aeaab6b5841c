package app

import (
	"fmt"
	"strings"
)

// Command はmoodmateの起動モードを表す。
type Command string

const (
	// CommandServe は認証・ジャーナル・気分予測のHTTP APIを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除ジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はusers・sessions・journalsのスキーマを最新にする。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIの /api/health を確認する。
	// distrolessイメージのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// commands は受け付けるサブコマンドの一覧。
var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。未知のサブコマンドはエラーとし、
// 打ち間違いでAPIサーバーが起動しないようにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "", fmt.Errorf("unknown command %q (expected one of: %s)", args[0], strings.Join(names, ", "))
}
