// Package powermanagement provides an interface to the Freedesktop
// power management DBus API (org.freedesktop.PowerManagement).
package powermanagement

import (
	"context"

	"github.com/gobus-project/dbus"
)

const (
	mainInterface    = "org.freedesktop.PowerManagement"
	inhibitInterface = "org.freedesktop.PowerManagement.Inhibit"
)

// PowerManagement is a client view of one peer's
// org.freedesktop.PowerManagement and
// org.freedesktop.PowerManagement.Inhibit interfaces.
type PowerManagement struct{ p dbus.Proxy }

// New returns an interface to the power management service exported
// by destination on conn.
func New(conn *dbus.Connection, destination string) PowerManagement {
	return PowerManagement{p: dbus.NewProxy(conn, destination, "/org/freedesktop/PowerManagement", 0)}
}

func (iface PowerManagement) main() dbus.Methods    { return iface.p.Interface(mainInterface) }
func (iface PowerManagement) inhibit() dbus.Methods { return iface.p.Interface(inhibitInterface) }

// CanHibernate reports whether the system is capable of hibernating.
//
// Hibernation, also known as "suspend to disk", saves the system
// state to durable storage and powers the computer off entirely.
func (iface PowerManagement) CanHibernate(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.main().Call(ctx, "CanHibernate", nil, &ret)
	return ret, err
}

// CanHybridSuspend reports whether the system is capable of entering
// hybrid sleep.
//
// Hybrid sleep saves the system state to durable storage, but then
// does a regular suspend instead of powering off entirely. This
// allows the system to resume rapidly while it still has battery
// (like suspend), without losing the system state if the battery runs
// out (like hibernate).
func (iface PowerManagement) CanHybridSuspend(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.main().Call(ctx, "CanHybridSuspend", nil, &ret)
	return ret, err
}

// CanSuspend reports whether the system is capable of suspending.
//
// Suspending, also known as "suspend to RAM", puts the system to
// sleep with all its state preserved in RAM.
func (iface PowerManagement) CanSuspend(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.main().Call(ctx, "CanSuspend", nil, &ret)
	return ret, err
}

// CanSuspendThenHibernate reports whether the system is capable of
// "suspend then hibernate" sleep.
//
// Suspend-then-hibernate initially suspends to RAM, but transitions
// to hibernation (suspend to disk) if the battery reaches critical
// levels.
func (iface PowerManagement) CanSuspendThenHibernate(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.main().Call(ctx, "CanSuspendThenHibernate", nil, &ret)
	return ret, err
}

// ShouldSavePower reports whether the caller should try to lower its
// power consumption.
//
// The reported value reports the system's current power usage policy.
// It does not necessarily mean that the system is running on battery
// power.
func (iface PowerManagement) ShouldSavePower(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.main().Call(ctx, "GetPowerSaveStatus", nil, &ret)
	return ret, err
}

// Hibernate asks the system to hibernate.
//
// Hibernation, also known as suspend to disk, saves the running
// system's state to durable storage before powering off entirely. A
// hibernating laptop consumes almost no power, but resuming from
// hibernation takes many seconds.
func (iface PowerManagement) Hibernate(ctx context.Context) error {
	return iface.main().Call(ctx, "Hibernate", nil)
}

// Suspend asks the system to suspend.
//
// Suspending, also known as suspend to RAM, saves the running
// system's state to RAM and goes to sleep. Battery usage while
// suspended is low, but not zero as the system still needs to keep
// the RAM powered on maintain its contents. Resuming from the
// suspended state is very fast, typically under a second.
func (iface PowerManagement) Suspend(ctx context.Context) error {
	return iface.main().Call(ctx, "Suspend", nil)
}

// HasInhibit reports whether the system is currently being prevented
// from sleeping by an application.
//
// Inhibits block all forms of sleep (suspend, hibernate, hybrid
// suspend, suspend-then-hibernate).
func (iface PowerManagement) HasInhibit(ctx context.Context) (bool, error) {
	var ret bool
	err := iface.inhibit().Call(ctx, "HasInhibit", nil, &ret)
	return ret, err
}

// InhibitSleep prevents the system from going to sleep.
//
// application and reason are human-readable strings that should
// explain what is preventing the system from sleeping, and why. For
// example, a background system update might use the application name
// "System" and the reason "Installing updates".
//
// The returned cancellation function should be called when the sleep
// inhibition should be lifted.
func (iface PowerManagement) InhibitSleep(ctx context.Context, application string, reason string) (cancel func(context.Context) error, err error) {
	var cookie uint32
	if err := iface.inhibit().Call(ctx, "Inhibit", []any{application, reason}, &cookie); err != nil {
		return nil, err
	}
	cancel = func(ctx context.Context) error {
		return iface.inhibit().Call(ctx, "UnInhibit", []any{cookie})
	}
	return cancel, nil
}

// CanHibernateChanged signals that the system's ability to hibernate
// has changed.
type CanHibernateChanged struct {
	CanHibernate bool
}

// CanHybridSuspendChanged signals that the system's ability to enter
// hybrid sleep has changed.
type CanHybridSuspendChanged struct {
	CanHybridSuspend bool
}

// CanSuspendChanged signals that the system's ability to suspend to
// RAM has changed.
type CanSuspendChanged struct {
	CanSuspend bool
}

// CanSuspendThenHibernateChanged signals that the system's ability to
// enter "suspend then hibernate" sleep has changed.
type CanSuspendThenHibernateChanged struct {
	CanSuspendThenHibernate bool
}

// ShouldSavePowerChanged signals that the system's power saving
// policy has changed.
type ShouldSavePowerChanged struct {
	SavePower bool
}

// HasInhibitChanged signals that the system's sleep inhibition state
// has changed.
type HasInhibitChanged struct {
	HasInhibit bool
}

func onBool[T any](s dbus.Signals, member string, build func(bool) T, fn func(context.Context, T)) (remove func()) {
	return s.Connect(member, func(ctx context.Context, args *dbus.ArgReader) {
		var v bool
		if err := args.Next(&v); err != nil {
			return
		}
		fn(ctx, build(v))
	})
}

// OnCanHibernateChanged subscribes to CanHibernateChanged.
func (iface PowerManagement) OnCanHibernateChanged(fn func(context.Context, CanHibernateChanged)) (remove func()) {
	return onBool(iface.p.Signals(mainInterface), "CanHibernateChanged", func(v bool) CanHibernateChanged { return CanHibernateChanged{v} }, fn)
}

// OnCanHybridSuspendChanged subscribes to CanHybridSuspendChanged.
func (iface PowerManagement) OnCanHybridSuspendChanged(fn func(context.Context, CanHybridSuspendChanged)) (remove func()) {
	return onBool(iface.p.Signals(mainInterface), "CanHybridSuspendChanged", func(v bool) CanHybridSuspendChanged { return CanHybridSuspendChanged{v} }, fn)
}

// OnCanSuspendChanged subscribes to CanSuspendChanged.
func (iface PowerManagement) OnCanSuspendChanged(fn func(context.Context, CanSuspendChanged)) (remove func()) {
	return onBool(iface.p.Signals(mainInterface), "CanSuspendChanged", func(v bool) CanSuspendChanged { return CanSuspendChanged{v} }, fn)
}

// OnCanSuspendThenHibernateChanged subscribes to
// CanSuspendThenHibernateChanged.
func (iface PowerManagement) OnCanSuspendThenHibernateChanged(fn func(context.Context, CanSuspendThenHibernateChanged)) (remove func()) {
	return onBool(iface.p.Signals(mainInterface), "CanSuspendThenHibernateChanged", func(v bool) CanSuspendThenHibernateChanged { return CanSuspendThenHibernateChanged{v} }, fn)
}

// OnShouldSavePowerChanged subscribes to PowerSaveStatusChanged.
func (iface PowerManagement) OnShouldSavePowerChanged(fn func(context.Context, ShouldSavePowerChanged)) (remove func()) {
	return onBool(iface.p.Signals(mainInterface), "PowerSaveStatusChanged", func(v bool) ShouldSavePowerChanged { return ShouldSavePowerChanged{v} }, fn)
}

// OnHasInhibitChanged subscribes to
// org.freedesktop.PowerManagement.Inhibit.HasInhibitChanged.
func (iface PowerManagement) OnHasInhibitChanged(fn func(context.Context, HasInhibitChanged)) (remove func()) {
	return onBool(iface.p.Signals(inhibitInterface), "HasInhibitChanged", func(v bool) HasInhibitChanged { return HasInhibitChanged{v} }, fn)
}
