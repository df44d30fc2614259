package cli

import (
	"fmt"
	"io"

	"github.com/nikicat/mcewatch/internal/mce"
)

// Printer opens one facade per kind and writes a line for every change.
// OpenPrinter and Close must run on the event loop that drives reg.
type Printer struct {
	w       io.Writer
	closers []func()
}

// OpenPrinter registers change handlers for kinds, or for every kind if
// kinds is empty.
func OpenPrinter(reg *mce.Registry, w io.Writer, kinds []mce.Kind) (*Printer, error) {
	if len(kinds) == 0 {
		kinds = mce.Kinds()
	}
	p := &Printer{w: w}
	for _, kind := range kinds {
		var err error
		switch kind {
		case mce.KindBattery:
			err = p.openBattery(reg)
		case mce.KindCharger:
			err = p.openCharger(reg)
		case mce.KindDisplay:
			err = p.openDisplay(reg)
		case mce.KindTklock:
			err = p.openTklock(reg)
		case mce.KindInactivity:
			err = p.openInactivity(reg)
		default:
			err = fmt.Errorf("%w: %q", mce.ErrUnknownKind, kind)
		}
		if err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Close removes every handler and releases the facades.
func (p *Printer) Close() {
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
}

func (p *Printer) openBattery(reg *mce.Registry) error {
	b, err := mce.NewBattery(reg)
	if err != nil {
		return err
	}
	cb := func(b *mce.Battery, changed mce.Field) {
		fmt.Fprintf(p.w, "battery: valid=%t level=%d status=%s (%s changed)\n",
			b.Valid(), b.Level(), b.Status(), changed)
	}
	ids := []mce.HandlerID{
		b.AddValidChangedHandler(cb),
		b.AddLevelChangedHandler(cb),
		b.AddStatusChangedHandler(cb),
	}
	p.closers = append(p.closers, func() {
		b.RemoveHandlers(ids)
		b.Close()
	})
	return nil
}

func (p *Printer) openCharger(reg *mce.Registry) error {
	c, err := mce.NewCharger(reg)
	if err != nil {
		return err
	}
	cb := func(c *mce.Charger, changed mce.Field) {
		fmt.Fprintf(p.w, "charger: valid=%t state=%s (%s changed)\n",
			c.Valid(), c.State(), changed)
	}
	ids := []mce.HandlerID{
		c.AddValidChangedHandler(cb),
		c.AddStateChangedHandler(cb),
	}
	p.closers = append(p.closers, func() {
		c.RemoveHandlers(ids)
		c.Close()
	})
	return nil
}

func (p *Printer) openDisplay(reg *mce.Registry) error {
	d, err := mce.NewDisplay(reg)
	if err != nil {
		return err
	}
	cb := func(d *mce.Display, changed mce.Field) {
		fmt.Fprintf(p.w, "display: valid=%t state=%s (%s changed)\n",
			d.Valid(), d.State(), changed)
	}
	ids := []mce.HandlerID{
		d.AddValidChangedHandler(cb),
		d.AddStateChangedHandler(cb),
	}
	p.closers = append(p.closers, func() {
		d.RemoveHandlers(ids)
		d.Close()
	})
	return nil
}

func (p *Printer) openTklock(reg *mce.Registry) error {
	t, err := mce.NewTklock(reg)
	if err != nil {
		return err
	}
	cb := func(t *mce.Tklock, changed mce.Field) {
		fmt.Fprintf(p.w, "tklock: valid=%t mode=%s locked=%t (%s changed)\n",
			t.Valid(), t.Mode(), t.Locked(), changed)
	}
	ids := []mce.HandlerID{
		t.AddValidChangedHandler(cb),
		t.AddModeChangedHandler(cb),
		t.AddLockedChangedHandler(cb),
	}
	p.closers = append(p.closers, func() {
		t.RemoveHandlers(ids)
		t.Close()
	})
	return nil
}

func (p *Printer) openInactivity(reg *mce.Registry) error {
	i, err := mce.NewInactivity(reg)
	if err != nil {
		return err
	}
	cb := func(i *mce.Inactivity, changed mce.Field) {
		fmt.Fprintf(p.w, "inactivity: valid=%t status=%t (%s changed)\n",
			i.Valid(), i.Status(), changed)
	}
	ids := []mce.HandlerID{
		i.AddValidChangedHandler(cb),
		i.AddStatusChangedHandler(cb),
	}
	p.closers = append(p.closers, func() {
		i.RemoveHandlers(ids)
		i.Close()
	})
	return nil
}
