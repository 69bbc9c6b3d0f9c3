// Extract CLI — инструмент оператора для работы с запросами,
// расписаниями и плагинами через HTTP API.
//
// Использование:
//
//	extract [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	request     Запросы и действия оператора
//	schedule    Расписания заданий и триггер sync
//	job         Ручной запуск заданий
//	plugins     Доступные коннекторы и задачи
//	connectors  Настроенные коннекторы
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/Extract/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
