package main

import (
	"bytes"
	"cmp"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/creachadair/mds/heapq"
	"github.com/gobus-project/dbus"
)

type indenter struct {
	prefix     string
	indentNext bool
}

func (i *indenter) v(v any) {
	fmt.Fprintf(i, "%v\n", v)
}

func (i *indenter) s(msg string) {
	io.WriteString(i, msg+"\n")
}

func (i *indenter) f(msg string, args ...any) {
	fmt.Fprintf(i, msg+"\n", args...)
}

func (i *indenter) Write(bs []byte) (int, error) {
	ret := 0
	for len(bs) > 0 {
		if i.indentNext {
			i.indentNext = false
			_, err := io.WriteString(os.Stdout, i.prefix)
			if err != nil {
				return ret, err
			}
		}

		var wr []byte
		idx := bytes.IndexByte(bs, '\n')
		if idx >= 0 {
			i.indentNext = true
			wr, bs = bs[:idx+1], bs[idx+1:]
		} else {
			bs = nil
		}

		n, err := os.Stdout.Write(wr)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

func isUniqueName(name string) bool {
	return strings.HasPrefix(name, ":")
}

// listPeers enumerates bus names matching peerFilter. Unique
// connection names (like ":1.234") are skipped by default, since many
// of them do not expect to be sent RPCs and do not respond to
// introspection correctly.
func listPeers(ctx context.Context, conn *dbus.Connection, peerFilter string) iter.Seq2[string, error] {
	if peerFilter == "" {
		peerFilter = `^[^:].*`
	}
	return func(yield func(string, error) bool) {
		f, err := regexp.Compile(peerFilter)
		if err != nil {
			yield("", err)
			return
		}
		names, err := dbus.NewBus(conn).ListNames(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for _, n := range names {
			if !f.MatchString(n) {
				continue
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

// objectInterface is one interface implemented by one object of one
// bus peer.
type objectInterface struct {
	Peer        string
	Path        dbus.ObjectPath
	Name        string
	Description *dbus.InterfaceDescription
}

func childPath(parent dbus.ObjectPath, child string) dbus.ObjectPath {
	if parent == "/" {
		return dbus.ObjectPath("/" + child)
	}
	return parent + "/" + dbus.ObjectPath(child)
}

func introspect(ctx context.Context, conn *dbus.Connection, peer string, path dbus.ObjectPath) (*dbus.ObjectDescription, error) {
	p := dbus.NewProxy(conn, peer, path, 0)
	var xmlData string
	if err := p.Interface("org.freedesktop.DBus.Introspectable").Call(ctx, "Introspect", nil, &xmlData); err != nil {
		return nil, err
	}
	var desc dbus.ObjectDescription
	if err := xml.Unmarshal([]byte(xmlData), &desc); err != nil {
		return nil, fmt.Errorf("parsing introspection data: %w", err)
	}
	return &desc, nil
}

// listInterfaces walks peer's object tree in ascending object-path
// order, yielding every
// interface whose object path and interface name both match the given
// filters.
func listInterfaces(ctx context.Context, conn *dbus.Connection, peer, objectFilter, interfaceFilter string) iter.Seq2[objectInterface, error] {
	return func(yield func(objectInterface, error) bool) {
		om, err := regexp.Compile(objectFilter)
		if err != nil {
			yield(objectInterface{}, err)
			return
		}
		im, err := regexp.Compile(interfaceFilter)
		if err != nil {
			yield(objectInterface{}, err)
			return
		}

		paths := heapq.New(cmp.Compare[dbus.ObjectPath])
		paths.Add(dbus.ObjectPath("/"))
		for !paths.IsEmpty() {
			path, _ := paths.Pop()
			desc, err := introspect(ctx, conn, peer, path)
			if err != nil {
				if !yield(objectInterface{}, err) {
					return
				}
				continue
			}
			for _, child := range desc.Children {
				paths.Add(childPath(path, child))
			}
			if !om.MatchString(string(path)) {
				continue
			}
			ks := slices.Sorted(maps.Keys(desc.Interfaces))
			for _, k := range ks {
				if !im.MatchString(k) {
					continue
				}
				oi := objectInterface{Peer: peer, Path: path, Name: k, Description: desc.Interfaces[k]}
				if !yield(oi, nil) {
					return
				}
			}
		}
	}
}

func growTo(s []string, n int) []string {
	for len(s) < n {
		s = append(s, "")
	}
	return s
}
