// Package background provides an interface to the Freedesktop Flatpak
// background applications monitor.
//
// This corresponds to the org.freedesktop.background.Monitor service
// on the session bus, which provides a way to find out what Flatpak
// applications are running with no visible GUI.
package background

import (
	"context"
	"fmt"

	"github.com/gobus-project/dbus"
)

const ifaceName = "org.freedesktop.background.Monitor"

// Monitor is a client view of one peer's
// org.freedesktop.background.Monitor interface.
type Monitor struct{ p dbus.Proxy }

// New returns an interface to the Flatpak background applications
// monitor exported by destination on conn.
func New(conn *dbus.Connection, destination string) Monitor {
	return Monitor{p: dbus.NewProxy(conn, destination, "/org/freedesktop/background/monitor", 0)}
}

// App is a Flatpak application running in the background.
type App struct {
	// ID is the application's Flatpak ID.
	ID string
	// Instance is the application instance's ID.
	Instance string
	// Status is a status message provided by the application.
	Status string

	// Unknown collects any application attributes this package
	// doesn't interpret, keyed by their vardict entry name.
	Unknown map[string]dbus.Variant
}

// appFromVardict builds an App from one entry of the BackgroundApps
// property, a vardict keyed by attribute name.
func appFromVardict(id string, fields map[any]any) App {
	app := App{ID: id, Unknown: map[string]dbus.Variant{}}
	for k, raw := range fields {
		key, _ := k.(string)
		v, _ := raw.(dbus.Variant)
		switch key {
		case "instance":
			if s, ok := v.Value().(string); ok {
				app.Instance = s
			}
		case "message":
			if s, ok := v.Value().(string); ok {
				app.Status = s
			}
		default:
			app.Unknown[key] = v
		}
	}
	return app
}

func appsFromDynamic(val any) ([]App, error) {
	outer, ok := val.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("background: unexpected BackgroundApps value of type %T", val)
	}
	apps := make([]App, 0, len(outer))
	for k, inner := range outer {
		id, _ := k.(string)
		fields, _ := inner.(map[any]any)
		apps = append(apps, appFromVardict(id, fields))
	}
	return apps, nil
}

// BackgroundApps returns the Flatpak applications currently running
// in the background.
//
// BackgroundApps is a vardict-of-vardicts ("a{sa{sv}}"), so it's read
// through a [dbus.Variant] rather than a static Go type: this
// package's representation of each entry, [App], only pins down the
// fields it understands and keeps the rest in Unknown.
func (iface Monitor) BackgroundApps(ctx context.Context) ([]App, error) {
	var v dbus.Variant
	if err := iface.p.Properties(ifaceName).Get(ctx, "BackgroundApps", &v); err != nil {
		return nil, err
	}
	return appsFromDynamic(v.Value())
}

// BackgroundAppsChanged reports that the list of background apps has
// changed.
type BackgroundAppsChanged struct {
	Apps []App
}

// OnBackgroundAppsChanged subscribes to PropertiesChanged
// notifications for the BackgroundApps property.
func (iface Monitor) OnBackgroundAppsChanged(fn func(ctx context.Context, change BackgroundAppsChanged)) (remove func()) {
	return iface.p.Properties(ifaceName).OnChanged(func(ctx context.Context, change dbus.PropertiesChanged) {
		v, ok := change.Changed["BackgroundApps"]
		if !ok {
			return
		}
		apps, err := appsFromDynamic(v.Value())
		if err != nil {
			return
		}
		fn(ctx, BackgroundAppsChanged{Apps: apps})
	})
}
