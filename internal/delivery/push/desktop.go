package push

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"

	logx "blazealert/pkg/logx"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyIface = "org.freedesktop.Notifications"
)

// Desktop posts freedesktop notifications over the D-Bus session bus.
// The connection is opened lazily and reopened after a failure.
type Desktop struct {
	app string
	log logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewDesktop(app string, log logx.Logger) *Desktop {
	return &Desktop{app: app, log: log}
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) connect() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

func (d *Desktop) reset() {
	d.mu.Lock()
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	d.mu.Unlock()
}

// Available reports whether a notification daemon owns the well-known name.
func (d *Desktop) Available(ctx context.Context) bool {
	conn, err := d.connect()
	if err != nil {
		d.log.Debug("session bus unavailable", logx.Err(err))
		return false
	}
	var has bool
	err = conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, notifyDest).Store(&has)
	if err != nil {
		d.reset()
		return false
	}
	return has
}

func (d *Desktop) Send(ctx context.Context, m Message) error {
	conn, err := d.connect()
	if err != nil {
		return err
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(m.Urgency)),
	}
	if m.Tag != "" {
		hints["x-blazealert-id"] = dbus.MakeVariant(m.Tag)
	}
	var id uint32
	err = conn.Object(notifyDest, notifyPath).CallWithContext(ctx, notifyIface+".Notify", 0,
		d.app, uint32(0), "dialog-warning", m.Title, m.Body, []string{}, hints, int32(-1),
	).Store(&id)
	if err != nil {
		var derr dbus.Error
		if !errors.As(err, &derr) {
			d.reset()
		}
		return err
	}
	d.log.Trace("desktop notification posted", logx.Uint64("id", uint64(id)))
	return nil
}

func (d *Desktop) Close() error {
	d.reset()
	return nil
}
