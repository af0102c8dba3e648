//go:build tinygo

package main

import (
	"github.com/visitorckw/linmo/app"
	"github.com/visitorckw/linmo/hal"
	"github.com/visitorckw/linmo/kernel"
)

func main() {
	m := hal.NewTinyGo()
	k := kernel.New(m)
	k.Run(app.New(m, app.Config{Preemptive: true}))
}
