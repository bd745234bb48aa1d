package provider

import (
	"context"
	"sync"
	"time"
)

// FakeProvider is a scriptable Provider for tests. Responses and errors are
// consumed in FIFO order; when the script is exhausted the last entry
// repeats.
//
// FakeProvider is safe for concurrent use.
type FakeProvider struct {
	mu     sync.Mutex
	desc   Descriptor
	script []fakeStep
	delay  time.Duration
	calls  int
}

type fakeStep struct {
	resp *Response
	err  error
}

// NewFake creates a fake provider with the given name and capabilities.
func NewFake(name string, caps Capability) *FakeProvider {
	return &FakeProvider{
		desc: Descriptor{Name: name, Model: "fake/" + name, Capabilities: caps},
	}
}

// Respond queues a successful completion with the given text.
func (f *FakeProvider) Respond(text string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{resp: &Response{Text: text, Provider: f.desc.Name, Model: f.desc.Model}})
	return f
}

// RespondStructured queues a successful completion with a structured payload.
func (f *FakeProvider) RespondStructured(text string, raw []byte) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{resp: &Response{
		Text:       text,
		Structured: raw,
		Provider:   f.desc.Name,
		Model:      f.desc.Model,
	}})
	return f
}

// Fail queues a failed completion.
func (f *FakeProvider) Fail(err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{err: err})
	return f
}

// Delay makes every call block for d (or until ctx is done) before
// consuming the script. Used to exercise attempt timeouts.
func (f *FakeProvider) Delay(d time.Duration) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Calls returns how many times Complete has been invoked.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Name implements Provider.
func (f *FakeProvider) Name() string { return f.desc.Name }

// Descriptor implements Provider.
func (f *FakeProvider) Descriptor() Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desc
}

// Complete implements Provider.
func (f *FakeProvider) Complete(ctx context.Context, _ *Request) (*Response, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	var step fakeStep
	if len(f.script) > 0 {
		step = f.script[0]
		if len(f.script) > 1 {
			f.script = f.script[1:]
		}
	} else {
		step = fakeStep{err: ErrUnavailable}
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return step.resp, step.err
}
