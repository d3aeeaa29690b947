package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandMigrate はスキーマを最新版まで適用する。`migrate down` で1段階戻す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの /health を叩く。distrolessイメージのDocker HEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command     Command
	MigrateDown bool
}

// usage はエラー時に表示するサブコマンド一覧。
const usage = "usage: collegetrack [serve | migrate [up|down] | healthcheck]"

// ParseArgs はos.Args[1:]を解析する。
// 引数なしはserveとして扱う。未知のサブコマンドや余分な引数はエラーにする。
func ParseArgs(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandHealthcheck:
		if len(args) > 1 {
			return Invocation{}, fmt.Errorf("%s takes no arguments: %s", cmd, usage)
		}
		return Invocation{Command: cmd}, nil
	case CommandMigrate:
		inv := Invocation{Command: CommandMigrate}
		switch {
		case len(args) == 1:
		case len(args) == 2 && args[1] == "up":
		case len(args) == 2 && args[1] == "down":
			inv.MigrateDown = true
		default:
			return Invocation{}, fmt.Errorf("invalid migrate arguments %q: %s", strings.Join(args[1:], " "), usage)
		}
		return inv, nil
	default:
		return Invocation{}, fmt.Errorf("unknown command %q: %s", args[0], usage)
	}
}
