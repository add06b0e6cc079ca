package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/slice"
	"github.com/gobus-project/dbus"
	"github.com/gobus-project/dbus/freedesktop/background"
	"github.com/kr/pretty"
)

var globalArgs struct {
	UseSessionBus bool   `flag:"session,Connect to session bus instead of system bus"`
	Names         string `flag:"names,Comma-separated list of bus names to claim"`
}

func busConn(ctx context.Context) (*dbus.Connection, error) {
	var mk func(context.Context, dbus.Limits) (*dbus.Connection, error)
	if globalArgs.UseSessionBus {
		mk = dbus.SessionBus
	} else {
		mk = dbus.SystemBus
	}
	conn, err := mk(ctx, dbus.Limits{})
	if err != nil {
		return nil, err
	}

	if globalArgs.Names == "" {
		return conn, nil
	}

	for _, n := range strings.Split(globalArgs.Names, ",") {
		claim, err := conn.Claim(ctx, n, dbus.ClaimOptions{})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("claiming name %q: %w", n, err)
		}
		go func() {
			for isOwner := range claim.Chan() {
				if isOwner {
					fmt.Printf("acquired name %s\n", n)
				} else {
					fmt.Printf("lost name %s\n", n)
				}
			}
		}()
	}

	return conn, nil
}

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "list",
				Usage: "list args...",
				Commands: []*command.C{
					{
						Name:  "peers",
						Usage: "list peers",
						Help:  "List peers connected to the bus.",
						Run:   command.Adapt(runListPeers),
					},
					{
						Name:  "interfaces",
						Usage: "list interfaces [peer] [object] [interface]",
						Help: `List bus interfaces.

With no arguments, enumerates all discoverable interfaces on named bus
services. Unique bus names (like ":1.234") are skipped because many of
them do not expect to be sent RPCs, and do not respond correctly.

With one argument, enumerate all objects of the given peer and the
interfaces they implement.

With two arguments, enumerate all interfaces on the given peer and
object.

With three arguments, list only the interfaces whose peer, object and
interface match the given patterns.

In all cases, the full API for every interface is shown.
`,
						Run: runListInterfaces,
					},
					{
						Name:  "props",
						Usage: "list props [peer] [object] [interface] [property]",
						Help:  "List properties.",
						Run:   runListProps,
					},
				},
			},
			{
				Name:  "ping",
				Usage: "ping peer",
				Help:  "Ping a peer.",
				Run:   command.Adapt(runPing),
			},
			{
				Name:  "whois",
				Usage: "whois peer",
				Help:  "Get a peer's identity.",
				Run:   command.Adapt(runWhois),
			},
			{
				Name:  "listen",
				Usage: "listen",
				Help:  "Listen to bus signals.",
				Run:   command.Adapt(runListen),
			},
			{
				Name:  "features",
				Usage: "features",
				Help:  "List the message bus's feature flags.",
				Run:   command.Adapt(runFeatures),
			},
			{
				Name:  "serve-peer",
				Usage: "serve-peer",
				Help: `Serve the org.freedesktop.DBus.Peer interface.

The interface is installed automatically on every Skeleton; this
command exports one at "/" and does nothing else.

For best results, combine with --names to register a service name on the bus that other tools can target.`,
				Run: command.Adapt(runServePeer),
			},
			{
				Name:  "freedesktop",
				Usage: "freedesktop args...",
				Commands: []*command.C{
					{
						Name:  "background",
						Usage: "background args...",
						Commands: []*command.C{
							{
								Name:  "list",
								Usage: "list destination",
								Help:  "List flatpak apps that are running in the background",
								Run:   command.Adapt(runFdoBackgroundList),
							},
						},
					},
				},
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runListPeers(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
	defer cancel()
	bus := dbus.NewBus(conn)
	names, err := bus.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("listing bus names: %w", err)
	}

	aliases := map[string][]string{}
	for _, n := range names {
		if isUniqueName(n) {
			continue
		}
		owner, err := bus.GetNameOwner(ctx, n)
		if err != nil {
			fmt.Printf("Getting owner of %s: %v\n", n, err)
			continue
		}
		aliases[owner] = append(aliases[owner], n)
		aliases[n] = append(aliases[n], owner)
	}
	for _, alias := range aliases {
		slices.Sort(alias)
	}

	for _, n := range names {
		alias := aliases[n]
		if len(alias) == 0 {
			fmt.Println(n)
		} else {
			fmt.Printf("%s (%s)\n", n, strings.Join(alias, ", "))
		}
	}

	return nil
}

func runListInterfaces(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	args := growTo(env.Args, 3)
	ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
	defer cancel()
	bus := dbus.NewBus(conn)

	var out indenter
	var prevPeer, prevObj string
	for p, err := range listPeers(ctx, conn, args[0]) {
		if err != nil {
			out.v(err)
			continue
		}
		var ownerName string
		if isUniqueName(p) {
			ownerName = p
		} else if owner, err := bus.GetNameOwner(ctx, p); err != nil {
			ownerName = fmt.Sprintf("getting owner: %v", err)
		} else {
			ownerName = owner
		}
		for iface, err := range listInterfaces(ctx, conn, p, args[1], args[2]) {
			if err != nil {
				out.v(err)
				continue
			}
			if p != prevPeer {
				out.indent(0)
				if prevPeer != "" {
					out.s("")
				}
				out.f("%s (%s)", p, ownerName)
				out.indent(1)
				out.v(iface.Path)
				out.indent(2)
			} else if string(iface.Path) != prevObj {
				out.indent(1)
				out.v(iface.Path)
				out.indent(2)
			}

			out.v(iface.Description)
			prevPeer, prevObj = p, string(iface.Path)
		}
	}

	return nil
}

func runListProps(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	args := growTo(env.Args, 4)
	pf, err := regexp.Compile(args[3])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(env.Context(), 10*time.Second)
	defer cancel()
	var out indenter
	var prevPeer, prevObj string
	for p, err := range listPeers(ctx, conn, args[0]) {
		if err != nil {
			out.indent(0)
			out.v(err)
			continue
		}
		for iface, err := range listInterfaces(ctx, conn, p, args[1], args[2]) {
			if err != nil {
				out.indent(0)
				out.v(err)
				continue
			}
			if len(iface.Description.Properties) == 0 {
				continue
			}

			props, err := dbus.NewProxy(conn, p, iface.Path, 0).Properties(iface.Name).GetAll(ctx)
			if err != nil {
				out.indent(0)
				out.v(fmt.Errorf("listing properties of %s %s %s: %w", p, iface.Path, iface.Name, err))
				continue
			}
			ks := slices.Sorted(maps.Keys(props))
			ks = slices.Collect(slice.Select(ks, pf.MatchString))
			if len(ks) == 0 {
				continue
			}

			if p != prevPeer {
				out.indent(0)
				out.v(p)
				out.indent(1)
				out.v(iface.Path)
			} else if string(iface.Path) != prevObj {
				out.indent(1)
				out.v(iface.Path)
			}
			prevPeer, prevObj = p, string(iface.Path)

			out.indent(2)
			out.v(iface.Name)
			out.indent(3)
			for _, k := range ks {
				out.f("%s: %v", k, props[k])
			}
		}
	}
	return nil
}

func runPing(env *command.Env, peer string) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	p := dbus.NewProxy(conn, peer, "/", 0)
	if err := p.Interface("org.freedesktop.DBus.Peer").Call(env.Context(), "Ping", nil); err != nil {
		return fmt.Errorf("pinging %s: %w", peer, err)
	}

	return nil
}

func runWhois(env *command.Env, peer string) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	ctx := env.Context()
	bus := dbus.NewBus(conn)

	if uid, err := bus.GetConnectionUnixUser(ctx, peer); err != nil {
		fmt.Printf("UID: %v\n", err)
	} else {
		fmt.Println("UID:", uid)
	}
	if pid, err := bus.GetConnectionUnixProcessID(ctx, peer); err != nil {
		fmt.Printf("PID: %v\n", err)
	} else {
		fmt.Println("PID:", pid)
	}
	if label, err := bus.GetConnectionSELinuxSecurityContext(ctx, peer); err == nil && len(label) > 0 {
		fmt.Println("Security label:", string(label))
	}

	creds, err := bus.GetConnectionCredentials(ctx, peer)
	if err != nil {
		return fmt.Errorf("getting credentials of %s: %w", peer, err)
	}
	for _, k := range slices.Sorted(maps.Keys(creds)) {
		fmt.Printf("%s: %v\n", k, creds[k])
	}

	return nil
}

func runListen(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	w := conn.Watch()
	defer w.Close()
	if _, err := w.Match(env.Context(), dbus.NewMatchRule()); err != nil {
		return fmt.Errorf("subscribing to signals: %w", err)
	}
	fmt.Println("Listening for signals...")
	for {
		select {
		case <-env.Context().Done():
			return nil
		case n, ok := <-w.Chan():
			if !ok {
				return nil
			}
			fmt.Printf("Signal %s.%s from %s on object %s:\n  %# v\n\n", n.Interface, n.Member, n.Sender, n.Path, pretty.Formatter(n.Args))
			if n.Overflow {
				fmt.Println("OVERFLOW, some signals lost")
			}
		}
	}
}

func runFeatures(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	features, err := dbus.NewBus(conn).Features(env.Context())
	if err != nil {
		return fmt.Errorf("listing bus features: %w", err)
	}
	slices.Sort(features)
	for _, f := range features {
		fmt.Println(f)
	}
	return nil
}

func runServePeer(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	s := dbus.NewSkeleton(conn, "/")
	defer s.Close()

	fmt.Println("Serving org.freedesktop.DBus.Peer on /")
	<-env.Context().Done()
	fmt.Println("shutdown")
	return nil
}

func runFdoBackgroundList(env *command.Env, destination string) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(env.Context(), 5*time.Second)
	defer cancel()

	apps, err := background.New(conn, destination).BackgroundApps(ctx)
	if err != nil {
		return fmt.Errorf("listing background apps: %w", err)
	}
	slices.SortFunc(apps, func(a, b background.App) int {
		return strings.Compare(a.ID, b.ID)
	})
	for _, app := range apps {
		fmt.Println(app.ID, app.Instance, app.Status)
	}
	return nil
}
