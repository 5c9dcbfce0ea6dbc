package main

import (
	"testing"

	"github.com/amanah-kas/amanah-kas/internal/app"
	_ "github.com/amanah-kas/amanah-kas/internal/testing/guard"
)

func TestWorkerExitsImmediatelyInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected guard import to enable test mode")
	}
	main()
}
