package cli

import (
	"context"
	"fmt"
	"strings"
)

func (a *App) Status(ctx context.Context) error {
	if a.isLoggedIn() {
		u := a.session.Current().User
		printlnFn("User:", u.Email, "("+u.FullName()+")")
	} else {
		printlnFn("User: not logged in")
	}
	mode := "offline"
	if a.online.Current() {
		mode = "online"
	}
	printlnFn("Mode:", mode)

	n, err := a.mutations.PendingCount(ctx)
	if err != nil {
		return err
	}
	printlnFn("Pending changes:", n)
	printlnFn("Dark mode:", onOff(a.settings.DarkMode()))
	printlnFn("Modules:", strings.Join(a.settings.ActiveModules(), ", "))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// DarkMode shows or sets the theme flag: darkmode [on|off].
func (a *App) DarkMode(ctx context.Context, args string) error {
	var on bool
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "":
		printlnFn("Dark mode:", onOff(a.settings.DarkMode()))
		return nil
	case "on", "true", "1":
		on = true
	case "off", "false", "0":
		on = false
	default:
		printlnFn("Usage: darkmode [on|off]")
		return nil
	}
	if err := a.settings.SetDarkMode(ctx, on); err != nil {
		return err
	}
	printlnFn("Dark mode:", onOff(on))
	return nil
}

// Module toggles a business module: module <id>.
func (a *App) Module(ctx context.Context, args string) error {
	id := strings.TrimSpace(args)
	if id == "" {
		printlnFn("Active modules:", strings.Join(a.settings.ActiveModules(), ", "))
		return nil
	}
	active, err := a.settings.ToggleModule(ctx, id)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Module %s: %s", id, onOff(active)))
	return nil
}
