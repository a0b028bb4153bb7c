package channel

import (
	"sync"

	"github.com/zeusync/ipcq/internal/core/ipcq"
)

// inbox holds what arrived at one channel end in arrival order. Transmits
// wait here until the dispatcher drains them. An exchange blocked on the same
// dispatcher takes the transmits that arrived ahead of its reply before it
// returns, so a reply never overtakes data sent before it.
type inbox struct {
	mu      sync.Mutex
	entries []inboxEntry
}

type inboxEntry struct {
	env ipcq.Envelope
	// reply marks where the reply to exchange seq arrived; zero for transmits.
	reply uint64
}

func (b *inbox) push(envs ...ipcq.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, env := range envs {
		b.entries = append(b.entries, inboxEntry{env: env})
	}
}

func (b *inbox) pushReply(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, inboxEntry{reply: seq})
}

// next removes every queued transmit. Reply markers left by exchanges that
// gave up are dropped with them.
func (b *inbox) next() []ipcq.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []ipcq.Envelope
	for _, e := range b.entries {
		if e.reply == 0 {
			out = append(out, e.env)
		}
	}
	b.entries = nil
	return out
}

// through removes the marker for seq and returns the transmits queued ahead
// of it. Anything behind the marker stays for the dispatcher.
func (b *inbox) through(seq uint64) []ipcq.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	at := -1
	for i, e := range b.entries {
		if e.reply == seq {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}

	var out []ipcq.Envelope
	rest := make([]inboxEntry, 0, len(b.entries)-at-1)
	for _, e := range b.entries[:at] {
		if e.reply == 0 {
			out = append(out, e.env)
		} else {
			rest = append(rest, e)
		}
	}
	b.entries = append(rest, b.entries[at+1:]...)
	return out
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// deliver hands envs to in, stopping at the first rejected envelope.
func deliver(in ipcq.Inbound, envs []ipcq.Envelope) error {
	for _, env := range envs {
		if err := in.OnReceiveTransmit(env); err != nil {
			return err
		}
	}
	return nil
}
