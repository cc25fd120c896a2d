// ebuddy はメール/パスワード認証とプロフィール管理を提供するWebアプリケーション。
//
// 使い方:
//
//	ebuddy [serve|api|migrate|healthcheck]
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/ebuddy/internal/app"
)

func main() {
	// .env.local を優先し、存在しなければ .env を読む。既存の環境変数は上書きしない。
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
		}
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
