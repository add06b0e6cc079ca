package dbus

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestRenderIntrospectionRoundTrip(t *testing.T) {
	descs := []*InterfaceDescription{
		{
			Name: "test.Echo",
			Methods: []*MethodDescription{
				{
					Name: "Echo",
					In:   []ArgumentDescription{{Name: "msg", Type: mustParseSignature("s")}},
					Out:  []ArgumentDescription{{Name: "reply", Type: mustParseSignature("s")}},
				},
			},
			Signals: []*SignalDescription{
				{Name: "Changed", Args: []ArgumentDescription{{Name: "value", Type: mustParseSignature("i")}}},
			},
			Properties: []*PropertyDescription{
				{Name: "Count", Type: mustParseSignature("i"), Readable: true, Writable: true},
			},
		},
	}

	xmlDoc := renderIntrospection(descs)
	if !strings.HasPrefix(xmlDoc, xml.Header) {
		t.Fatalf("renderIntrospection() missing XML header:\n%s", xmlDoc)
	}

	var got ObjectDescription
	if err := xml.Unmarshal([]byte(xmlDoc), &got); err != nil {
		t.Fatalf("Unmarshal(rendered XML) error = %v", err)
	}
	iface, ok := got.Interfaces["test.Echo"]
	if !ok {
		t.Fatalf("rendered XML missing interface test.Echo, got %+v", got.Interfaces)
	}
	if len(iface.Methods) != 1 || iface.Methods[0].Name != "Echo" {
		t.Errorf("Methods = %+v, want one method named Echo", iface.Methods)
	}
	if len(iface.Methods[0].In) != 1 || iface.Methods[0].In[0].Type.String() != "s" {
		t.Errorf("Echo.In = %+v, want one string arg", iface.Methods[0].In)
	}
	if len(iface.Signals) != 1 || iface.Signals[0].Name != "Changed" {
		t.Errorf("Signals = %+v, want one signal named Changed", iface.Signals)
	}
	if len(iface.Properties) != 1 || !iface.Properties[0].Readable || !iface.Properties[0].Writable {
		t.Errorf("Properties = %+v, want one readwrite property", iface.Properties)
	}
}

func TestRenderIntrospectionSortsInterfaces(t *testing.T) {
	descs := []*InterfaceDescription{
		{Name: "z.Last"},
		{Name: "a.First"},
	}
	xmlDoc := renderIntrospection(descs)
	if strings.Index(xmlDoc, `"a.First"`) > strings.Index(xmlDoc, `"z.Last"`) {
		t.Errorf("interfaces not sorted by name:\n%s", xmlDoc)
	}
}

func TestPropertyDescriptionUnmarshalAccess(t *testing.T) {
	tests := []struct {
		xmlSrc       string
		wantReadable bool
		wantWritable bool
	}{
		{`<property name="X" type="i" access="read"/>`, true, false},
		{`<property name="X" type="i" access="write"/>`, false, true},
		{`<property name="X" type="i" access="readwrite"/>`, true, true},
	}
	for _, tc := range tests {
		var p PropertyDescription
		if err := xml.Unmarshal([]byte(tc.xmlSrc), &p); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", tc.xmlSrc, err)
		}
		if p.Readable != tc.wantReadable || p.Writable != tc.wantWritable {
			t.Errorf("Unmarshal(%q) = {Readable:%v Writable:%v}, want {%v %v}",
				tc.xmlSrc, p.Readable, p.Writable, tc.wantReadable, tc.wantWritable)
		}
	}
}

func TestPropertyDescriptionUnmarshalUnknownAccess(t *testing.T) {
	var p PropertyDescription
	err := xml.Unmarshal([]byte(`<property name="X" type="i" access="bogus"/>`), &p)
	if err == nil {
		t.Fatal("Unmarshal() with unknown access value should fail")
	}
}

func TestPropertyDescriptionEmitsChangedSignalAnnotation(t *testing.T) {
	tests := []struct {
		name                    string
		xmlSrc                  string
		wantEmits, wantIncludes bool
		wantConstant            bool
	}{
		{
			"default",
			`<property name="X" type="i" access="read"/>`,
			true, true, false,
		},
		{
			"false",
			`<property name="X" type="i" access="read"><annotation name="org.freedesktop.DBus.Property.EmitsChangedSignal" value="false"/></property>`,
			false, false, false,
		},
		{
			"invalidates",
			`<property name="X" type="i" access="read"><annotation name="org.freedesktop.DBus.Property.EmitsChangedSignal" value="invalidates"/></property>`,
			true, false, false,
		},
		{
			"const",
			`<property name="X" type="i" access="read"><annotation name="org.freedesktop.DBus.Property.EmitsChangedSignal" value="const"/></property>`,
			false, false, true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var p PropertyDescription
			if err := xml.Unmarshal([]byte(tc.xmlSrc), &p); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if p.EmitsSignal != tc.wantEmits || p.SignalIncludesValue != tc.wantIncludes || p.Constant != tc.wantConstant {
				t.Errorf("got {Emits:%v Includes:%v Constant:%v}, want {%v %v %v}",
					p.EmitsSignal, p.SignalIncludesValue, p.Constant, tc.wantEmits, tc.wantIncludes, tc.wantConstant)
			}
		})
	}
}

func TestMethodDescriptionUnmarshalDirectionsAndAnnotations(t *testing.T) {
	src := `<method name="Foo">
		<arg name="in1" type="s" direction="in"/>
		<arg name="out1" type="i" direction="out"/>
		<annotation name="org.freedesktop.DBus.Deprecated" value="true"/>
		<annotation name="org.freedesktop.DBus.Method.NoReply" value="true"/>
	</method>`
	var m MethodDescription
	if err := xml.Unmarshal([]byte(src), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(m.In) != 1 || m.In[0].Name != "in1" || m.In[0].Type.String() != "s" {
		t.Errorf("In = %+v", m.In)
	}
	if len(m.Out) != 1 || m.Out[0].Name != "out1" || m.Out[0].Type.String() != "i" {
		t.Errorf("Out = %+v", m.Out)
	}
	if !m.Deprecated || !m.NoReply {
		t.Errorf("Deprecated=%v NoReply=%v, want both true", m.Deprecated, m.NoReply)
	}
}

func TestMethodDescriptionString(t *testing.T) {
	m := MethodDescription{
		Name: "Echo",
		In:   []ArgumentDescription{{Name: "msg", Type: mustParseSignature("s")}},
		Out:  []ArgumentDescription{{Name: "reply", Type: mustParseSignature("s")}},
	}
	want := "func Echo(msg s) (reply s)"
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	m.Deprecated = true
	m.NoReply = true
	want = "func Echo(msg s) (reply s) [deprecated,noreply]"
	if got := m.String(); got != want {
		t.Errorf("String() with flags = %q, want %q", got, want)
	}
}

func TestArgumentDescriptionStringFixesUpDashedNames(t *testing.T) {
	a := ArgumentDescription{Name: "object-path", Type: mustParseSignature("o")}
	want := "object_path o"
	if got := a.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestObjectDescriptionUnmarshalChildren(t *testing.T) {
	src := `<node>
		<node name="child1"/>
		<node name="child2"/>
	</node>`
	var o ObjectDescription
	if err := xml.Unmarshal([]byte(src), &o); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(o.Children) != 2 || o.Children[0] != "child1" || o.Children[1] != "child2" {
		t.Errorf("Children = %v, want [child1 child2]", o.Children)
	}
}
