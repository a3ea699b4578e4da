package session

import (
	"sync"

	"github.com/janisto/chatmate/internal/platform/observe"
)

// Watchers reports how many Watch streams are open.
func (c *Coordinator) Watchers() int { return c.signIn.Subscribers() }

// Watch streams a Snapshot whenever any of the three values changes, starting
// with the current one. The channel closes after cancel is called.
func (c *Coordinator) Watch() (<-chan Snapshot, func()) {
	inCh, cancelIn := c.signIn.Subscribe()
	upCh, cancelUp := c.signUp.Subscribe()
	profCh, cancelProf := c.current.Subscribe()

	out := make(chan Snapshot, observe.DefaultBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			cancelIn()
			cancelUp()
			cancelProf()
		})
	}

	go func() {
		defer close(out)
		snap := Snapshot{SignIn: <-inCh, SignUp: <-upCh, Profile: (<-profCh).Clone()}
		for {
			select {
			case out <- snap:
			case <-done:
				return
			}
			select {
			case v, ok := <-inCh:
				if !ok {
					return
				}
				snap.SignIn = v
			case v, ok := <-upCh:
				if !ok {
					return
				}
				snap.SignUp = v
			case v, ok := <-profCh:
				if !ok {
					return
				}
				snap.Profile = v.Clone()
			case <-done:
				return
			}
		}
	}()
	return out, cancel
}
