// Package notifications provides an interface to the Freedesktop
// notifications API.
//
// This corresponds to the org.freedesktop.Notifications service on
// the session bus.
package notifications

import (
	"context"

	"github.com/gobus-project/dbus"
)

const ifaceName = "org.freedesktop.Notifications"

// Notification is a client view of one peer's
// org.freedesktop.Notifications interface.
type Notification struct{ p dbus.Proxy }

// New returns an interface to the session's notification service
// exported by destination on conn.
func New(conn *dbus.Connection, destination string) Notification {
	return Notification{p: dbus.NewProxy(conn, destination, "/org/freedesktop/Notifications", 0)}
}

func (iface Notification) methods() dbus.Methods { return iface.p.Interface(ifaceName) }

func (iface Notification) CloseNotification(ctx context.Context, id uint32) error {
	return iface.methods().Call(ctx, "CloseNotification", []any{id})
}

// Capabilities supported by various DEs
//
// Actions supported by Gnome
// ==========================
// actions
// body
// body-markup
// icon-static
// persistence
// sound
//
// Actions supported by KDE
// ========================
// actions
// body
// body-hyperlinks
// body-images
// body-markup
// icon-static
// inhibitions
// inline-reply
// persistence
// x-kde-display-appname
// x-kde-origin-name
// x-kde-urls
//
// Not mentioned in standards
// ==========================
// inhibitions
// inline-reply
//
// In standard but nobody implements?
// ==================================
// action-icons
// icon-multi

// Capabilities enumerates the optional capabilities of a notification
// service.
type Capabilities struct {
	// Actions reports whether notifications can have actions attached
	// to them. Actions trigger a signal back to the notification's
	// sender when interacted with.
	Actions bool
	// ActionIcons reports notification actions can use icons to
	// describe actions instead of text.
	ActionIcons bool
	// Body reports whether notifications can have a body, in addition
	// to a short title.
	//
	// Most notification services support bodies, but clients should
	// not assume that all do.
	Body bool
	// BodyLinks reports whether notification bodies can include
	// hyperlinks.
	BodyLinks bool
	// BodyImages reports whether notification bodies can include
	// images.
	BodyImages bool
	// BodyMarkup reports whether notification bodies can contain
	// notification markup, a small subset of HTML.
	BodyMarkup bool
	// Icon reports whether notifications can have an icon.
	Icon bool
	// IconAnimation reports whether the notification icon can be
	// multiple frames of animation, or just a single static frame.
	IconAnimation bool
	// Persistence reports whether notifications can be
	// persistent. Persistent notifications remain on screen until
	// explicitly dismissed by the user.
	Persistence bool
	// Sound reports whether notifications can play a sound.
	Sound bool

	// Inhibitions reports whether the notification service supports
	// the Inhibit call, for controlled suppression of notifications.
	//
	// Inhibitions is a KDE-only extension to the notifications API.
	Inhibitions bool
	// InlineReply reports whether notifications can prompt for text
	// reply within the notification.
	//
	// InlineReply is a KDE-only extension to the notifications API.
	InlineReply bool
	// ContextURLs reports whether notifications can include URL
	// hints, to enrich the notification's interaction options. For
	// example, a file:// URL adds a context menu to interact with the
	// file, whereas https:// URLs show a site preview.
	//
	// ContextURLs is a KDE-only extension to the notifications API.
	ContextURLs bool
	// DisplayAppName reports whether notifications can show a pretty
	// name for the sending application.
	//
	// DisplayAppName is a KDE-only extension to the notifications API.
	DisplayAppName bool
	// DisplayOriginName reports whether notifications can show an
	// additional "origin" for notification, e.g. a website domain or
	// a message's sender in chat apps.
	//
	// DisplayOriginName is a KDE-only extension to the notifications
	// API.
	DisplayOriginName bool

	// Unknown collects the capability strings that aren't known to
	// this package.
	Unknown []string
}

// Capabilities reports the capabilities of the notification service.
func (iface Notification) Capabilities(ctx context.Context) (caps Capabilities, err error) {
	var cs []string
	if err := iface.methods().Call(ctx, "GetCapabilities", nil, &cs); err != nil {
		return Capabilities{}, err
	}
	for _, c := range cs {
		switch c {
		case "actions":
			caps.Actions = true
		case "action-icons":
			caps.ActionIcons = true
		case "body":
			caps.Body = true
		case "body-hyperlinks":
			caps.BodyLinks = true
		case "body-images":
			caps.BodyImages = true
		case "body-markup":
			caps.BodyMarkup = true
		case "icon-static":
			caps.Icon = true
		case "icon-multi":
			caps.Icon = true
			caps.IconAnimation = true
		case "persistence":
			caps.Persistence = true
		case "sound":
			caps.Sound = true

		case "inhibitions":
			caps.Inhibitions = true
		case "inline-reply":
			caps.InlineReply = true
		case "x-kde-display-appname":
			caps.DisplayAppName = true
		case "x-kde-origin-name":
			caps.DisplayOriginName = true
		case "x-kde-urls":
			caps.ContextURLs = true

		default:
			caps.Unknown = append(caps.Unknown, c)
		}
	}
	return caps, nil
}

// ServerInformation identifies the running notification server.
type ServerInformation struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// GetServerInformation reports the running notification server's
// identity.
func (iface Notification) GetServerInformation(ctx context.Context) (info ServerInformation, err error) {
	err = iface.methods().Call(ctx, "GetServerInformation", nil, &info.Name, &info.Vendor, &info.Version, &info.SpecVersion)
	return info, err
}

// Inhibit suppresses notifications until the returned cookie is
// passed to UnInhibit. desktopEntry identifies the calling
// application; reason is a human-readable explanation.
func (iface Notification) Inhibit(ctx context.Context, desktopEntry string, reason string, hints map[string]dbus.Variant) (cookie uint32, err error) {
	err = iface.methods().Call(ctx, "Inhibit", []any{desktopEntry, reason, hints}, &cookie)
	return cookie, err
}

// NotifyRequest describes a notification to display.
type NotifyRequest struct {
	AppName    string
	ReplacesID uint32
	AppIcon    string
	Summary    string
	Body       string
	Actions    []string
	Hints      map[string]dbus.Variant
	Timeout    int32
}

// Notify displays req, returning the notification's ID.
func (iface Notification) Notify(ctx context.Context, req NotifyRequest) (id uint32, err error) {
	err = iface.methods().Call(ctx, "Notify", []any{
		req.AppName, req.ReplacesID, req.AppIcon, req.Summary, req.Body,
		req.Actions, req.Hints, req.Timeout,
	}, &id)
	return id, err
}

// UnInhibit releases an inhibition previously obtained from Inhibit.
func (iface Notification) UnInhibit(ctx context.Context, cookie uint32) error {
	return iface.methods().Call(ctx, "UnInhibit", []any{cookie})
}

// Inhibited returns the value of the property "Inhibited".
func (iface Notification) Inhibited(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.p.Properties(ifaceName).Get(ctx, "Inhibited", &ret)
	return ret, err
}

// InhibitedChanged reports that the value of property "Inhibited" has
// changed.
type InhibitedChanged struct {
	Inhibited bool
}

// OnInhibitedChanged subscribes to PropertiesChanged notifications
// for the Inhibited property.
func (iface Notification) OnInhibitedChanged(fn func(ctx context.Context, change InhibitedChanged)) (remove func()) {
	return iface.p.Properties(ifaceName).OnChanged(func(ctx context.Context, change dbus.PropertiesChanged) {
		v, ok := change.Changed["Inhibited"]
		if !ok {
			return
		}
		if b, ok := v.Value().(bool); ok {
			fn(ctx, InhibitedChanged{Inhibited: b})
		}
	})
}

// ActionInvoked implements the signal org.freedesktop.Notifications.ActionInvoked.
type ActionInvoked struct {
	Id        uint32
	ActionKey string
}

// ActivationToken implements the signal org.freedesktop.Notifications.ActivationToken.
type ActivationToken struct {
	Id              uint32
	ActivationToken string
}

// NotificationClosed implements the signal org.freedesktop.Notifications.NotificationClosed.
type NotificationClosed struct {
	Id     uint32
	Reason uint32
}

// NotificationReplied implements the signal org.freedesktop.Notifications.NotificationReplied.
type NotificationReplied struct {
	Id   uint32
	Text string
}

// OnActionInvoked subscribes to the ActionInvoked signal.
func (iface Notification) OnActionInvoked(fn func(ctx context.Context, e ActionInvoked)) (remove func()) {
	return iface.p.Signals(ifaceName).Connect("ActionInvoked", func(ctx context.Context, args *dbus.ArgReader) {
		var e ActionInvoked
		if err := args.Next(&e.Id); err != nil {
			return
		}
		if err := args.Next(&e.ActionKey); err != nil {
			return
		}
		fn(ctx, e)
	})
}

// OnActivationToken subscribes to the ActivationToken signal.
func (iface Notification) OnActivationToken(fn func(ctx context.Context, e ActivationToken)) (remove func()) {
	return iface.p.Signals(ifaceName).Connect("ActivationToken", func(ctx context.Context, args *dbus.ArgReader) {
		var e ActivationToken
		if err := args.Next(&e.Id); err != nil {
			return
		}
		if err := args.Next(&e.ActivationToken); err != nil {
			return
		}
		fn(ctx, e)
	})
}

// OnNotificationClosed subscribes to the NotificationClosed signal.
func (iface Notification) OnNotificationClosed(fn func(ctx context.Context, e NotificationClosed)) (remove func()) {
	return iface.p.Signals(ifaceName).Connect("NotificationClosed", func(ctx context.Context, args *dbus.ArgReader) {
		var e NotificationClosed
		if err := args.Next(&e.Id); err != nil {
			return
		}
		if err := args.Next(&e.Reason); err != nil {
			return
		}
		fn(ctx, e)
	})
}

// OnNotificationReplied subscribes to the NotificationReplied signal.
func (iface Notification) OnNotificationReplied(fn func(ctx context.Context, e NotificationReplied)) (remove func()) {
	return iface.p.Signals(ifaceName).Connect("NotificationReplied", func(ctx context.Context, args *dbus.ArgReader) {
		var e NotificationReplied
		if err := args.Next(&e.Id); err != nil {
			return
		}
		if err := args.Next(&e.Text); err != nil {
			return
		}
		fn(ctx, e)
	})
}
