package dbus_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gobus-project/dbus"
	"github.com/gobus-project/dbus/dbustest"
	"github.com/gobus-project/dbus/dispatch"
)

// drive attaches a worker-pool dispatch driver to conn so that
// replies and signals delivered by the test bus actually reach
// pending calls and handlers. Callers that don't drive dispatch get a
// connection that reads messages off the wire but never acts on them.
func drive(t *testing.T, conn *dbus.Connection) {
	t.Helper()
	pool := dispatch.NewWorkerPool(conn, 4)
	conn.SetStatusObserver(pool)
}

func TestIntegrationListNames(t *testing.T) {
	bus := dbustest.New(t, false)
	conn := bus.MustConn(t)
	defer conn.Close()
	drive(t, conn)

	names, err := dbus.NewBus(conn).ListNames(context.Background())
	if err != nil {
		t.Fatalf("ListNames() error = %v", err)
	}
	if !slices.Contains(names, "org.freedesktop.DBus") {
		t.Errorf("ListNames() = %v, want it to contain org.freedesktop.DBus", names)
	}
	if !slices.Contains(names, conn.UniqueName()) {
		t.Errorf("ListNames() = %v, want it to contain this connection's unique name %q", names, conn.UniqueName())
	}
}

// nested is the struct-within-struct shape from the struct-signature
// seed scenario: a string field, a nested struct field, and an
// array-of-struct field, round-tripped through a method call's body.
type nested = dbus.Struct3[string, dbus.Struct2[int32, string], []dbus.Struct2[string, bool]]

func TestIntegrationEchoMethod(t *testing.T) {
	bus := dbustest.New(t, false)

	server := bus.MustConn(t)
	defer server.Close()
	drive(t, server)

	client := bus.MustConn(t)
	defer client.Close()
	drive(t, client)

	skel := dbus.NewSkeleton(server, "/test/Echo")
	defer skel.Close()
	skel.Method("test.Echo", "Echo", func(ctx context.Context, args *dbus.ArgReader, reply *dbus.ArgWriter) error {
		var n nested
		if err := args.Next(&n); err != nil {
			return err
		}
		return reply.Put(n)
	})
	skel.Method("test.Echo", "Fail", func(ctx context.Context, args *dbus.ArgReader, reply *dbus.ArgWriter) error {
		return dbus.RemoteError("test.Echo.Error.Boom", "kaboom")
	})

	want := nested{
		V1: "hi",
		V2: dbus.Struct2[int32, string]{V1: 7, V2: "seven"},
		V3: []dbus.Struct2[string, bool]{
			{V1: "a", V2: true},
			{V1: "b", V2: false},
		},
	}

	proxy := dbus.NewProxy(client, server.UniqueName(), "/test/Echo", 5*time.Second)

	var got nested
	if err := proxy.Interface("test.Echo").Call(context.Background(), "Echo", []any{want}, &got); err != nil {
		t.Fatalf("Call(Echo) error = %v", err)
	}
	if got.V1 != want.V1 || got.V2 != want.V2 || len(got.V3) != len(want.V3) {
		t.Errorf("Echo round-trip = %+v, want %+v", got, want)
	}
	for i := range got.V3 {
		if got.V3[i] != want.V3[i] {
			t.Errorf("Echo round-trip item %d = %+v, want %+v", i, got.V3[i], want.V3[i])
		}
	}

	err := proxy.Interface("test.Echo").Call(context.Background(), "Fail", nil)
	if err == nil {
		t.Fatal("Call(Fail) should have returned an error")
	}
	var re *dbus.Error
	if !errors.As(err, &re) {
		t.Fatalf("Call(Fail) error = %v, want a *dbus.Error", err)
	}
	if re.Name != "test.Echo.Error.Boom" {
		t.Errorf("Call(Fail) error name = %q, want test.Echo.Error.Boom", re.Name)
	}
}

func TestIntegrationPropertyRoundTrip(t *testing.T) {
	bus := dbustest.New(t, false)

	server := bus.MustConn(t)
	defer server.Close()
	drive(t, server)

	client := bus.MustConn(t)
	defer client.Close()
	drive(t, client)

	const iface = "test.Counter"
	skel := dbus.NewSkeleton(server, "/test/Counter")
	defer skel.Close()

	var count int32 = 1
	skel.Property(iface, "Count",
		func(ctx context.Context) (any, error) { return count, nil },
		func(ctx context.Context, v dbus.Variant) error {
			n, ok := v.Value().(int32)
			if !ok {
				return dbus.InvalidArgs
			}
			count = n
			return skel.EmitPropertiesChanged(ctx, iface, map[string]dbus.Variant{"Count": v}, nil)
		},
	)

	rule := dbus.NewMatchRule().
		WithSender(server.UniqueName()).
		WithInterface("org.freedesktop.DBus.Properties").
		WithMember("PropertiesChanged")
	if err := dbus.NewBus(client).AddMatch(context.Background(), rule); err != nil {
		t.Fatalf("AddMatch() error = %v", err)
	}
	defer dbus.NewBus(client).RemoveMatch(context.Background(), rule)

	proxy := dbus.NewProxy(client, server.UniqueName(), "/test/Counter", 5*time.Second)
	props := proxy.Properties(iface)

	var got int32
	if err := props.Get(context.Background(), "Count", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 1 {
		t.Errorf("Get() = %d, want 1", got)
	}

	changed := make(chan dbus.PropertiesChanged, 1)
	remove := props.OnChanged(func(ctx context.Context, c dbus.PropertiesChanged) {
		changed <- c
	})
	defer remove()

	if err := props.Set(context.Background(), "Count", int32(42)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case c := <-changed:
		v, ok := c.Changed["Count"].Value().(int32)
		if !ok || v != 42 {
			t.Errorf("PropertiesChanged Count = %v, want int32(42)", c.Changed["Count"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for PropertiesChanged")
	}

	if err := props.Get(context.Background(), "Count", &got); err != nil {
		t.Fatalf("Get() after Set error = %v", err)
	}
	if got != 42 {
		t.Errorf("Get() after Set = %d, want 42", got)
	}
}
