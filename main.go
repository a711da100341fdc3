// @title Trigger Engine API
// @version 1.0
// @description Cron and webhook triggers that create agent tasks, with automatic safety shut-off.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"fmt"
	"os"

	_ "trigger-engine/docs"
	"trigger-engine/internal/app"
)

func main() {
	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
