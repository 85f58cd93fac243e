package panel

import (
	"context"
	"sync"

	"github.com/manatee-project/manatee-jobs/internal/i18n"
)

// Widget is anything a Container can host.
type Widget interface {
	Mount(ctx context.Context)
	Unmount()
}

// Container is a titled host for widgets. Mounting the container mounts its
// widgets in order, unmounting tears them down in reverse order.
type Container struct {
	Title string

	mu      sync.Mutex
	widgets []Widget
	mounted bool
}

// NewContainer resolves the title through the translator at construction.
// A nil translator leaves the title untranslated.
func NewContainer(title string, tr i18n.Translator, widgets ...Widget) *Container {
	if tr == nil {
		tr = i18n.NullTranslator()
	}
	return &Container{
		Title:   tr.Translate(title),
		widgets: widgets,
	}
}

// AddWidget appends a widget, mounting it right away when the container is
// already mounted.
func (c *Container) AddWidget(ctx context.Context, w Widget) {
	c.mu.Lock()
	c.widgets = append(c.widgets, w)
	mounted := c.mounted
	c.mu.Unlock()

	if mounted {
		w.Mount(ctx)
	}
}

func (c *Container) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	widgets := append([]Widget(nil), c.widgets...)
	c.mu.Unlock()

	for _, w := range widgets {
		w.Mount(ctx)
	}
}

func (c *Container) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	widgets := append([]Widget(nil), c.widgets...)
	c.mu.Unlock()

	for i := len(widgets) - 1; i >= 0; i-- {
		widgets[i].Unmount()
	}
}

func (c *Container) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}
