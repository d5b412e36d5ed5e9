package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーと同期スケジューラを起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は同期スケジューラのみを起動することを示す。
	CommandWorker Command = "worker"
	// CommandSync は同期パスを1回だけ実行することを示す。
	CommandSync Command = "sync"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandLadelog は標準入力のGoingElectricラデログをCloudKitレコードに変換することを示す。
	CommandLadelog Command = "ladelog"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "sync":
		return CommandSync
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "ladelog":
		return CommandLadelog
	default:
		return CommandServe
	}
}
