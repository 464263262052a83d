// @title           MWork Messaging API
// @version         1.0
// @description     Переписка и уведомления MWork. Клиенты опрашивают API, постоянного соединения нет.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"os"

	"mwork_messaging/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
