package bluetooth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// D-Bus interfaces implemented by published objects.
const (
	gattServiceInterface        = "org.bluez.GattService1"
	gattCharacteristicInterface = "org.bluez.GattCharacteristic1"
	gattDescriptorInterface     = "org.bluez.GattDescriptor1"
	gattProfileInterface        = "org.bluez.GattProfile1"

	propertiesInterface    = "org.freedesktop.DBus.Properties"
	introspectInterface    = "org.freedesktop.DBus.Introspectable"
	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
)

// Conn is the part of a D-Bus connection needed to publish objects. It is
// implemented by *dbus.Conn.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// busObject is an object published at a single path under one BlueZ
// interface. The value itself is exported, so its exported methods become the
// D-Bus methods of that interface.
type busObject interface {
	objectPath() dbus.ObjectPath
	iface() string
	properties() map[string]dbus.Variant
	// writable returns the names of properties accepted by setProperty.
	writable() []string
	setProperty(name string, value dbus.Variant) *dbus.Error
}

// treeEntry is a path registered in the object tree.
type treeEntry struct {
	object  busObject // nil for a root without a BlueZ interface
	ifaces  []string
	managed bool
}

// objectTree keeps track of every published path of a connection. A single
// lock covers all applications published through the same Server.
type objectTree struct {
	conn Conn

	mu      sync.RWMutex
	entries map[dbus.ObjectPath]*treeEntry
}

func newObjectTree(conn Conn) *objectTree {
	return &objectTree{
		conn:    conn,
		entries: make(map[dbus.ObjectPath]*treeEntry),
	}
}

// publish exports root as an object manager and every object below it. If any
// export fails, everything exported so far is withdrawn.
func (t *objectTree) publish(root dbus.ObjectPath, objects []busObject) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[root]; ok {
		return fmt.Errorf("bluetooth: path %s already published", root)
	}
	added := make([]dbus.ObjectPath, 0, len(objects)+1)
	defer func() {
		if err != nil {
			t.withdraw(added)
		}
	}()

	rootEntry := &treeEntry{managed: true}
	t.entries[root] = rootEntry
	added = append(added, root)
	for _, obj := range objects {
		path := obj.objectPath()
		if path == root {
			rootEntry.object = obj
			continue
		}
		if _, ok := t.entries[path]; ok {
			return fmt.Errorf("bluetooth: path %s already published", path)
		}
		t.entries[path] = &treeEntry{object: obj}
		added = append(added, path)
	}

	for _, path := range added {
		entry := t.entries[path]
		if entry.object != nil {
			if err := t.export(entry, entry.object, path, entry.object.iface()); err != nil {
				return err
			}
			if err := t.export(entry, &objectProperties{tree: t, path: path}, path, propertiesInterface); err != nil {
				return err
			}
		}
		if entry.managed {
			if err := t.export(entry, &objectManager{tree: t, root: path}, path, objectManagerInterface); err != nil {
				return err
			}
		}
		node := t.introspection(path, entry, added)
		if err := t.export(entry, introspect.NewIntrospectable(node), path, introspectInterface); err != nil {
			return err
		}
	}
	return nil
}

func (t *objectTree) export(entry *treeEntry, v interface{}, path dbus.ObjectPath, iface string) error {
	if err := t.conn.Export(v, path, iface); err != nil {
		return fmt.Errorf("bluetooth: could not export %s at %s: %w", iface, path, err)
	}
	entry.ifaces = append(entry.ifaces, iface)
	return nil
}

// remove withdraws root and every path below it.
func (t *objectTree) remove(root dbus.ObjectPath) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var paths []dbus.ObjectPath
	for path := range t.entries {
		if isBelow(path, root) {
			paths = append(paths, path)
		}
	}
	return t.withdraw(paths)
}

// withdraw removes paths from the table before unexporting them, deepest
// first. The caller holds the lock.
func (t *objectTree) withdraw(paths []dbus.ObjectPath) error {
	removed := make(map[dbus.ObjectPath]*treeEntry, len(paths))
	for _, path := range paths {
		if entry, ok := t.entries[path]; ok {
			removed[path] = entry
			delete(t.entries, path)
		}
	}
	ordered := make([]dbus.ObjectPath, 0, len(removed))
	for path := range removed {
		ordered = append(ordered, path)
	}
	sort.Slice(ordered, func(i, j int) bool {
		di, dj := depth(ordered[i]), depth(ordered[j])
		if di != dj {
			return di > dj
		}
		return ordered[i] < ordered[j]
	})

	var errs []error
	for _, path := range ordered {
		entry := removed[path]
		for i := len(entry.ifaces) - 1; i >= 0; i-- {
			if err := t.conn.Export(nil, path, entry.ifaces[i]); err != nil {
				errs = append(errs, fmt.Errorf("bluetooth: could not unexport %s at %s: %w", entry.ifaces[i], path, err))
			}
		}
	}
	return errors.Join(errs...)
}

// lookup returns the object published at path, if any.
func (t *objectTree) lookup(path dbus.ObjectPath) busObject {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if entry, ok := t.entries[path]; ok {
		return entry.object
	}
	return nil
}

func (t *objectTree) published(path dbus.ObjectPath) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[path]
	return ok
}

// managedObjects returns the objects at and below root with their properties.
func (t *objectTree) managedObjects(root dbus.ObjectPath) map[dbus.ObjectPath]map[string]map[string]dbus.Variant {
	t.mu.RLock()
	defer t.mu.RUnlock()

	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	for path, entry := range t.entries {
		if entry.object == nil || !isBelow(path, root) {
			continue
		}
		objects[path] = map[string]map[string]dbus.Variant{
			entry.object.iface(): entry.object.properties(),
		}
	}
	return objects
}

// introspection describes the interfaces of one path and its direct children
// among the paths being published.
func (t *objectTree) introspection(path dbus.ObjectPath, entry *treeEntry, paths []dbus.ObjectPath) *introspect.Node {
	node := &introspect.Node{Name: string(path)}
	if obj := entry.object; obj != nil {
		writable := make(map[string]bool)
		for _, name := range obj.writable() {
			writable[name] = true
		}
		props := obj.properties()
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		iface := introspect.Interface{
			Name:    obj.iface(),
			Methods: introspect.Methods(obj),
		}
		for _, name := range names {
			access := "read"
			if writable[name] {
				access = "readwrite"
			}
			iface.Properties = append(iface.Properties, introspect.Property{
				Name:   name,
				Type:   props[name].Signature().String(),
				Access: access,
			})
		}
		node.Interfaces = append(node.Interfaces, iface, prop.IntrospectData)
	}
	if entry.managed {
		node.Interfaces = append(node.Interfaces, introspect.Interface{
			Name: objectManagerInterface,
			Methods: []introspect.Method{{
				Name: "GetManagedObjects",
				Args: []introspect.Arg{{Name: "objects", Type: "a{oa{sa{sv}}}", Direction: "out"}},
			}},
		})
	}
	for _, p := range paths {
		if parentPath(p) == path {
			node.Children = append(node.Children, introspect.Node{Name: lastElement(p)})
		}
	}
	return node
}

// objectProperties implements org.freedesktop.DBus.Properties for one path.
type objectProperties struct {
	tree *objectTree
	path dbus.ObjectPath
}

func (p *objectProperties) object(iface string) (busObject, *dbus.Error) {
	obj := p.tree.lookup(p.path)
	if obj == nil || obj.iface() != iface {
		return nil, prop.ErrIfaceNotFound
	}
	return obj, nil
}

func (p *objectProperties) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	obj, dErr := p.object(iface)
	if dErr != nil {
		return dbus.Variant{}, dErr
	}
	value, ok := obj.properties()[name]
	if !ok {
		return dbus.Variant{}, prop.ErrPropNotFound
	}
	return value, nil
}

func (p *objectProperties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	obj, dErr := p.object(iface)
	if dErr != nil {
		return nil, dErr
	}
	return obj.properties(), nil
}

func (p *objectProperties) Set(iface, name string, value dbus.Variant) *dbus.Error {
	obj, dErr := p.object(iface)
	if dErr != nil {
		return dErr
	}
	if _, ok := obj.properties()[name]; !ok {
		return prop.ErrPropNotFound
	}
	return obj.setProperty(name, value)
}

// objectManager implements org.freedesktop.DBus.ObjectManager at the root of
// an application or profile.
type objectManager struct {
	tree *objectTree
	root dbus.ObjectPath
}

func (m *objectManager) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	return m.tree.managedObjects(m.root), nil
}

// setHandle is the setProperty implementation shared by every attribute: only
// Handle can be written and it must be a uint16.
func setHandle(cell *handleCell, name string, value dbus.Variant) *dbus.Error {
	if name != "Handle" {
		return prop.ErrReadOnly
	}
	handle, ok := value.Value().(uint16)
	if !ok {
		return prop.ErrInvalidArg
	}
	cell.set(handle)
	return nil
}

func isBelow(path, root dbus.ObjectPath) bool {
	return path == root || strings.HasPrefix(string(path), string(root)+"/")
}

func depth(path dbus.ObjectPath) int {
	return strings.Count(string(path), "/")
}

func parentPath(path dbus.ObjectPath) dbus.ObjectPath {
	i := strings.LastIndexByte(string(path), '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func lastElement(path dbus.ObjectPath) string {
	return string(path[strings.LastIndexByte(string(path), '/')+1:])
}
