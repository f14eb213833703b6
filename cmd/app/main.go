package main

import (
	"go.uber.org/fx"

	"github.com/fanplatform/subscription-service/internal/app"
)

func main() {
	fx.New(app.CreateApp()).Run()
}
