package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/xkilldash9x/reelpost/internal/browser"
)

// Launcher hands out scripted pages. Setup, when set, prepares each page
// before it is returned; the argument is the 1-based page number.
type Launcher struct {
	Setup func(n int, p *Page)
	Err   error

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (l *Launcher) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, errors.New("browsertest: launcher is closed")
	}
	if l.Err != nil {
		l.mu.Unlock()
		return nil, l.Err
	}
	p := NewPage()
	l.pages = append(l.pages, p)
	n := len(l.pages)
	setup := l.Setup
	l.mu.Unlock()

	if setup != nil {
		setup(n, p)
	}
	return p, nil
}

// Pages returns every page created so far.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

var _ browser.Launcher = (*Launcher)(nil)
