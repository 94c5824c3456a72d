package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモード（リンク補完・クリーンアップ）で起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandImport はファイル・標準入力・フィードURLから記事を取り込む。
	CommandImport Command = "import"
	// CommandCreateAdmin は管理者アカウントを作成する。
	CommandCreateAdmin Command = "create-admin"
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
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "import":
		return CommandImport
	case "create-admin":
		return CommandCreateAdmin
	default:
		return CommandServe
	}
}

// commandArgs はサブコマンド名を除いた引数を返す。
func commandArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}
